// Command jvmcore is the minimal launcher in front of pkg/vm (spec.md
// §1 excludes the real launcher's argument parsing from core scope;
// this is the stand-in spec.md §6 describes only at its interface).
//
// Grounded on the teacher's cmd/gojvm (a single main() resolving a
// class file path and invoking pkg/vm), restructured around
// github.com/spf13/cobra the way _examples/saferwall-pe/cmd/pedumper.go
// declares its flags, since the teacher's own cmd used plain os.Args
// indexing rather than a flag library.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacobin-core/jvmcore/internal/vmlog"
	"github.com/jacobin-core/jvmcore/pkg/vm"
)

// version is the banner --version/-version/--showversion prints
// (spec.md §6). No build-time injection mechanism exists yet, so this
// is a fixed string rather than a linker-set variable.
const version = "jvmcore 0.1.0"

func main() {
	var (
		classpath  string
		jarFile    string
		props      []string
		dryRun     bool
		showVer    bool
		imagePath  string
		debugLevel string
	)

	root := &cobra.Command{
		Use:   "jvmcore [flags] <main-class> [args...]",
		Short: "Run a Java class on the jvmcore runtime",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVer {
				fmt.Println(version)
				return nil
			}

			cp := classpath
			if cp == "" {
				if env, ok := os.LookupEnv("CLASSPATH"); ok {
					cp = env
				}
			}

			cfg := vm.Config{
				ImagePath:  imagePath,
				JarFile:    jarFile,
				Properties: parseProperties(props),
				LogLevel:   vmlog.ParseLevel(debugLevel),
				Stdout:     os.Stdout,
				Stderr:     os.Stderr,
			}
			for _, entry := range splitClasspath(cp) {
				if entry == "" {
					continue
				}
				if strings.HasSuffix(entry, ".jar") {
					cfg.ClasspathJars = append(cfg.ClasspathJars, entry)
				} else {
					cfg.ClasspathDirs = append(cfg.ClasspathDirs, entry)
				}
			}

			// -jar manifest reading is out of core scope (spec.md §1);
			// the main class still has to come from the command line.
			if len(args) < 1 {
				return fmt.Errorf("no main class specified")
			}
			cfg.MainClass = args[0]
			cfg.Args = args[1:]

			machine, err := vm.New(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			mainClass, err := machine.ResolveMainClass(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if _, _, err := machine.PrepareMain(mainClass); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if dryRun {
				return nil
			}

			os.Exit(machine.RunMain(mainClass, cfg.Args, os.Stdout, os.Stderr))
			return nil
		},
	}

	root.Flags().StringVar(&classpath, "classpath", "", "class search path of directories and jars")
	root.Flags().StringVar(&classpath, "cp", "", "alias for --classpath")
	root.Flags().StringVar(&jarFile, "jar", "", "execute the main class from <jarfile>")
	root.Flags().StringArrayVarP(&props, "define", "D", nil, "set a system property (key=value)")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "bring up the VM and resolve the main class, but do not invoke main")
	root.Flags().BoolVar(&showVer, "version", false, "print version information and exit")
	root.Flags().BoolVar(&showVer, "showversion", false, "print version information and exit")
	root.Flags().StringVar(&imagePath, "image", "", "path to the runtime image (defaults to JAVA_HOME/lib/modules)")
	root.Flags().StringVar(&debugLevel, "log-level", "warn", "warn, debug, or trace")
	root.Flags().SetInterspersed(false)

	// pflag reads a single-dash word as a cluster of one-character
	// shorthands, so the classic single-dash spellings `-version`, `-cp`,
	// `-classpath` and `-jar` (spec.md §6) are rewritten to their long
	// forms before cobra ever sees them. Rewriting stops at the main
	// class, so the program's own arguments pass through unchanged.
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--" || !strings.HasPrefix(a, "-") {
			break
		}
		switch a {
		case "-version", "-cp", "-classpath", "-jar":
			os.Args[i] = "-" + a
		}
		switch os.Args[i] {
		case "--cp", "--classpath", "--jar", "-D", "--define", "--image", "--log-level":
			i++ // skip the flag's separate value
		}
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// splitClasspath divides a -classpath argument on the platform's path
// list separator (spec.md §6 "colon/semicolon-separated search roots").
func splitClasspath(cp string) []string {
	if cp == "" {
		return nil
	}
	return strings.FieldsFunc(cp, func(r rune) bool { return r == ':' || r == ';' })
}

// parseProperties turns repeated -D key=value flags into a map
// (spec.md §6 "System properties -D<key>=<value>").
func parseProperties(entries []string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if k, v, ok := strings.Cut(e, "="); ok {
			out[k] = v
		} else {
			out[e] = ""
		}
	}
	return out
}

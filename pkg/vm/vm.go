// Package vm wires every subsystem in this tree together into a single
// runnable virtual machine: symbol table, string pool, bootstrap and
// system class loaders, native method registry, exception factory,
// dispatcher, and interpreter (spec.md §2 "Data flow"). This is the
// "VM bring-up and main-class resolution" surface spec.md §1 carves out
// from the CLI launcher itself; cmd/jvmcore is the thin flag-parsing
// shell in front of it.
//
// Grounded on the teacher's pkg/vm (NewVM, Execute: construct a
// bootstrap loader, a user loader chained to it, then run a named
// class's main), generalized from a single-jmod, single-classpath-dir
// setup into the fuller source list (runtime image, directories, and
// jars) the rest of this tree's pkg/classloader already supports.
package vm

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jacobin-core/jvmcore/internal/vmlog"
	"github.com/jacobin-core/jvmcore/pkg/classfile"
	"github.com/jacobin-core/jvmcore/pkg/classloader"
	"github.com/jacobin-core/jvmcore/pkg/dispatch"
	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/interpreter"
	"github.com/jacobin-core/jvmcore/pkg/native"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/platform"
	"github.com/jacobin-core/jvmcore/pkg/strpool"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// Config is everything cmd/jvmcore gathers from the command line and
// environment before bring-up (spec.md §6 "External interfaces").
type Config struct {
	ImagePath     string            // runtime image (modules file); defaults via platform.Env if empty
	ClasspathDirs []string          // -classpath/-cp entries that are directories
	ClasspathJars []string          // -classpath/-cp entries that are jars
	JarFile       string            // -jar <jarfile>; the main class still comes from MainClass
	MainClass     string            // binary name, e.g. "com/example/Main"
	Args          []string          // arguments passed on to main(String[])
	Properties    map[string]string // -D<key>=<value> overrides
	LogLevel      vmlog.Level
	Stdout        io.Writer
	Stderr        io.Writer
}

// VM bundles the fully wired runtime (spec.md §2's whole dependency
// graph, constructed once per process).
type VM struct {
	Strings    *strpool.Pool
	Bootstrap  *classloader.Loader
	System     *classloader.Loader
	Natives    *native.Registry
	Except     *except.Factory
	Dispatch   *dispatch.Dispatcher
	Interp     *interpreter.VM
	Platform   platform.Provider
	Log        *vmlog.Logger
	properties map[string]string
}

// New constructs and bootstraps a VM per cfg: opens the runtime image,
// builds the bootstrap and system class loaders, wires the native
// registry, dispatcher and interpreter together, then loads
// java.lang.Object and java.lang.Class and runs the mirror fix-up pass
// (spec.md §9 "Cyclic references between Class and its mirror").
func New(cfg Config) (*VM, error) {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	imagePath := cfg.ImagePath
	if imagePath == "" {
		imagePath = platform.Env{}.ImagePath()
	}
	imageSource, err := classloader.NewImageSource(imagePath)
	if err != nil {
		return nil, fmt.Errorf("vm: opening runtime image: %w", err)
	}

	strs := strpool.New()
	log := vmlog.New("vm", cfg.LogLevel)

	bootstrap := classloader.NewBootstrapLoader(imageSource, strs)

	cp := &classloader.ClassPath{}
	for _, dir := range cfg.ClasspathDirs {
		cp.Entries = append(cp.Entries, &classloader.DirSource{Root: dir})
	}
	for _, jarPath := range cfg.ClasspathJars {
		js, err := classloader.NewJarSource(jarPath)
		if err != nil {
			return nil, fmt.Errorf("vm: opening classpath jar: %w", err)
		}
		cp.Entries = append(cp.Entries, js)
	}
	if cfg.JarFile != "" {
		js, err := classloader.NewJarSource(cfg.JarFile)
		if err != nil {
			return nil, fmt.Errorf("vm: opening -jar file: %w", err)
		}
		cp.Entries = append(cp.Entries, js)
	}
	system := classloader.NewUserLoader("system", bootstrap, cp)

	natives := native.NewRegistry()
	native.RegisterBuiltins(natives)

	exFactory := except.NewFactory(system, strs)

	dispatcher := dispatch.New(system, natives, exFactory, strs, log)
	interp := interpreter.New(system, dispatcher, exFactory, log, 0)
	dispatcher.SetInterpreter(interp)

	bootstrap.SetBootstrapLinker(dispatcher)
	system.SetBootstrapLinker(dispatcher)

	v := &VM{
		Strings:    strs,
		Bootstrap:  bootstrap,
		System:     system,
		Natives:    natives,
		Except:     exFactory,
		Dispatch:   dispatcher,
		Interp:     interp,
		Platform:   platform.Default{},
		Log:        log,
		properties: mergedProperties(cfg.Properties),
	}

	v.registerPropertyNatives()

	if err := v.bootstrapCoreClasses(); err != nil {
		return nil, err
	}
	return v, nil
}

// registerPropertyNatives wires System.getProperty to this VM's merged
// property table (platform defaults overridden by -D flags), the one
// native whose answer depends on per-VM-instance state rather than
// being a pure function of its arguments, so it is registered here
// instead of among pkg/native's stateless builtins.
func (v *VM) registerPropertyNatives() {
	v.Natives.Register("java/lang/System", "getProperty", "(Ljava/lang/String;)Ljava/lang/String;", true,
		func(e any, args []object.Value) ([]object.Value, error) {
			de, ok := e.(*dispatch.Env)
			if !ok {
				return nil, fmt.Errorf("vm: unexpected native env type %T", e)
			}
			if args[0].Ref == nil {
				return nil, de.Throw("java/lang/NullPointerException", "System.getProperty: key is null")
			}
			inst, ok := object.AsInstance(args[0].Ref)
			if !ok {
				return nil, de.Throw("java/lang/NullPointerException", "System.getProperty: key is not a String")
			}
			key, ok := v.Strings.Contents(inst)
			if !ok {
				return []object.Value{object.NullValue()}, nil
			}
			val, ok := v.properties[key]
			if !ok {
				return []object.Value{object.NullValue()}, nil
			}
			result := v.Strings.Intern(val)
			return []object.Value{object.RefValue(&result.Header)}, nil
		})
}

func mergedProperties(overrides map[string]string) map[string]string {
	merged := platform.Default{}.Properties()
	for k, val := range overrides {
		merged[k] = val
	}
	return merged
}

// bootstrapCoreClasses loads the handful of classes every other class
// load implicitly depends on, in the order spec.md §9 requires:
// java.lang.Object (every class's ultimate superclass), then
// java.lang.Class itself (so Class.Mirror() calls made while loading
// Object can be backfilled), then java.lang.String (so the string pool
// can intern real String instances instead of header-less stand-ins).
func (v *VM) bootstrapCoreClasses() error {
	if _, err := v.Bootstrap.Load("java/lang/Object"); err != nil {
		return fmt.Errorf("vm: bootstrapping java.lang.Object: %w", err)
	}
	classClass, err := v.Bootstrap.Load("java/lang/Class")
	if err != nil {
		return fmt.Errorf("vm: bootstrapping java.lang.Class: %w", err)
	}
	v.fixUpMirrors(classClass)

	if stringClass, err := v.Bootstrap.Load("java/lang/String"); err == nil {
		v.Strings.SetStringClass(stringClass)
	} else {
		v.Log.Warn("java.lang.String did not load during bootstrap: %v", err)
	}

	for _, name := range []string{
		"java/lang/Throwable", "java/lang/Thread", "java/lang/System",
	} {
		if _, err := v.Bootstrap.Load(name); err != nil {
			v.Log.Warn("optional bootstrap class %s did not load: %v", name, err)
		}
	}
	return nil
}

// fixUpMirrors reattaches classClass to every mirror allocated before
// java.lang.Class finished loading (spec.md §9): Class.Mirror() may
// have run against java.lang.Object or an earlier-loaded class while
// classClass itself was still mid-link, leaving those mirrors' header
// Class nil.
func (v *VM) fixUpMirrors(classClass *object.Class) {
	for _, c := range v.Bootstrap.LoadedClasses() {
		if m := c.MirrorIfPresent(); m != nil {
			m.AttachMirrorClass(classClass)
		}
	}
}

// bindStandardStreams creates two PrintStream instances and records which
// file descriptor each writes to (see pkg/native.BindStream). It returns
// them without storing them into java.lang.System's out/err fields, and
// it does not check whether java.lang.System has loaded.
func (v *VM) bindStandardStreams(stdout, stderr io.Writer) (*object.Instance, *object.Instance, error) {
	psClass, err := v.System.Load("java/io/PrintStream")
	if err != nil {
		return nil, nil, fmt.Errorf("vm: loading java.io.PrintStream: %w", err)
	}
	out := object.NewInstance(psClass)
	errInst := object.NewInstance(psClass)
	if f, ok := stdout.(*os.File); ok {
		native.BindStream(out, f)
	} else {
		native.BindStream(out, os.Stdout)
	}
	if f, ok := stderr.(*os.File); ok {
		native.BindStream(errInst, f)
	} else {
		native.BindStream(errInst, os.Stderr)
	}
	return out, errInst, nil
}

// ResolveMainClass returns cfg.MainClass in internal form (dots turned
// into slashes), or an error when it is empty. The jar manifest's
// Main-Class entry is not read (spec.md §1 excludes jar reading itself
// from core scope), so under -jar the main class still comes from the
// explicit MainClass field cobra captured from the command line.
func (v *VM) ResolveMainClass(cfg Config) (string, error) {
	if cfg.MainClass != "" {
		return strings.ReplaceAll(cfg.MainClass, ".", "/"), nil
	}
	return "", fmt.Errorf("vm: no main class specified")
}

// PrepareMain loads mainClass and resolves its public static void
// main(String[]) method without invoking it (spec.md §6 "--dry-run:
// perform VM bring-up and main-class resolution but do not invoke
// main"). RunMain calls this as its own first step before dispatching,
// so a dry run and a real run perform identical main-class resolution.
func (v *VM) PrepareMain(mainClass string) (*object.Class, *object.Method, error) {
	class, err := v.System.Load(mainClass)
	if err != nil {
		return nil, nil, fmt.Errorf("could not find or load main class %s: %w", mainClass, err)
	}
	mainMethod := class.FindMethod("main", "([Ljava/lang/String;)V")
	if mainMethod == nil || !mainMethod.IsStatic() {
		return nil, nil, fmt.Errorf("main method not found in class %s", mainClass)
	}
	return class, mainMethod, nil
}

// RunMain loads mainClass, resolves its public static void main(String[])
// method, and invokes it on a fresh main thread (spec.md §3 "Thread",
// §4.10). Returns the process exit code per spec.md §6: 0 on normal
// completion, 1 on VM bring-up failure or an uncaught exception.
func (v *VM) RunMain(mainClass string, args []string, stdout, stderr io.Writer) int {
	class, mainMethod, err := v.PrepareMain(mainClass)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if _, _, err := v.bindStandardStreams(stdout, stderr); err != nil {
		v.Log.Warn("standard streams not bound: %v", err)
	}

	th := thread.New(nil)
	if err := v.Dispatch.EnsureInitialized(th, class); err != nil {
		v.reportUncaught(th, stderr)
		return 1
	}

	argv, err := v.buildArgsArray(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	_, err = v.Dispatch.InvokeStatic(th, mainMethod, []object.Value{argv})
	if err != nil && err != interpreter.ErrPending {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if th.Pending != nil {
		v.reportUncaught(th, stderr)
		return 1
	}
	return 0
}

// buildArgsArray builds the String[] passed to main, interning each
// argument through the string pool (spec.md §4.7).
func (v *VM) buildArgsArray(args []string) (object.Value, error) {
	stringArrayClass, err := v.System.LoadArrayClass("[Ljava/lang/String;")
	if err != nil {
		return object.Value{}, fmt.Errorf("building main args array: %w", err)
	}
	arr, err := object.NewArray(stringArrayClass, object.ArrayRef, len(args))
	if err != nil {
		return object.Value{}, err
	}
	for i, a := range args {
		inst := v.Strings.Intern(a)
		if err := arr.Set(i, object.RefValue(&inst.Header)); err != nil {
			return object.Value{}, err
		}
	}
	return object.RefValue(&arr.Header), nil
}

// reportUncaught prints the pending exception on the main thread: its
// class name and detail message, the decoded stack trace, and the
// cause's class name when a cause is recorded. It does not call
// Throwable.toString or printStackTrace.
func (v *VM) reportUncaught(th *thread.Thread, stderr io.Writer) {
	inst := th.Pending
	if inst == nil {
		return
	}
	th.Pending = nil
	className := inst.Class().NameStr()
	msg := except.Message(inst)
	if msg != "" {
		fmt.Fprintf(stderr, "Exception in thread \"main\" %s: %s\n", className, msg)
	} else {
		fmt.Fprintf(stderr, "Exception in thread \"main\" %s\n", className)
	}
	entries := except.Backtrace(inst)
	for _, el := range except.DecodeStackTrace(entries) {
		fmt.Fprintf(stderr, "\tat %s.%s(%s:%d)\n", el.ClassName, el.MethodName, el.FileName, el.Line)
	}
	if cause := except.Cause(inst); cause != nil {
		fmt.Fprintf(stderr, "Caused by: %s\n", cause.Class().NameStr())
	}
}

// Classfile re-exports classfile.Parse for callers (tests, --dry-run
// diagnostics) that need to sanity-check a single class file without
// going through a full Load.
func Classfile(data []byte) (*classfile.ClassFile, error) {
	return classfile.Parse(bytes.NewReader(data))
}

package native

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jacobin-core/jvmcore/pkg/classloader"
	"github.com/jacobin-core/jvmcore/pkg/dispatch"
	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/object"
)

// RegisterBuiltins installs the representative native-method set this
// tree ships with (spec.md §1 Non-goals: "specific native method
// implementations" beyond the ABI are out of core scope; these cover
// the handful every bootstrap class load and every println-using test
// program actually calls). Grounded on the teacher's pkg/native
// (PrintStream.Println, NativeInteger box/unbox, NativeHashMap
// Get/Put), generalized from directly-called Go helpers into entries
// keyed the way dispatch.Dispatcher looks native methods up.
func RegisterBuiltins(reg *Registry) {
	registerObject(reg)
	registerSystem(reg)
	registerClass(reg)
	registerThread(reg)
	registerThrowable(reg)
	registerPrintStream(reg)
}

func env(e any) *dispatch.Env {
	de, ok := e.(*dispatch.Env)
	if !ok {
		panic(fmt.Sprintf("native: unexpected env type %T", e))
	}
	return de
}

func registerObject(reg *Registry) {
	reg.Register("java/lang/Object", "hashCode", "()I", false, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		h := args[0].Ref.IdentityHash(de.Thread.NextHashSeed)
		return []object.Value{object.IntValue(h)}, nil
	})

	reg.Register("java/lang/Object", "getClass", "()Ljava/lang/Class;", false, func(e any, args []object.Value) ([]object.Value, error) {
		if args[0].Ref == nil {
			return nil, env(e).Throw("java/lang/NullPointerException", "Object.getClass on null")
		}
		mirror := args[0].Ref.Class().Mirror()
		return []object.Value{object.RefValue(&mirror.Header)}, nil
	})

	reg.Register("java/lang/Object", "wait", "(J)V", false, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		if args[0].Ref == nil {
			return nil, de.Throw("java/lang/NullPointerException", "Object.wait on null")
		}
		mon := args[0].Ref.Monitor(de.Thread.NextHashSeed)
		timeout := time.Duration(args[1].Long()) * time.Millisecond
		if err := mon.Wait(de.Thread.ID, timeout); err != nil {
			return nil, de.Throw("java/lang/IllegalMonitorStateException", err.Error())
		}
		return nil, nil
	})

	reg.Register("java/lang/Object", "notify", "()V", false, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		if args[0].Ref == nil {
			return nil, de.Throw("java/lang/NullPointerException", "Object.notify on null")
		}
		mon := args[0].Ref.Monitor(de.Thread.NextHashSeed)
		if err := mon.Notify(de.Thread.ID); err != nil {
			return nil, de.Throw("java/lang/IllegalMonitorStateException", err.Error())
		}
		return nil, nil
	})

	reg.Register("java/lang/Object", "notifyAll", "()V", false, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		if args[0].Ref == nil {
			return nil, de.Throw("java/lang/NullPointerException", "Object.notifyAll on null")
		}
		mon := args[0].Ref.Monitor(de.Thread.NextHashSeed)
		if err := mon.NotifyAll(de.Thread.ID); err != nil {
			return nil, de.Throw("java/lang/IllegalMonitorStateException", err.Error())
		}
		return nil, nil
	})
}

func registerSystem(reg *Registry) {
	reg.Register("java/lang/System", "identityHashCode", "(Ljava/lang/Object;)I", true, func(e any, args []object.Value) ([]object.Value, error) {
		if args[0].Ref == nil {
			return []object.Value{object.IntValue(0)}, nil
		}
		de := env(e)
		h := args[0].Ref.IdentityHash(de.Thread.NextHashSeed)
		return []object.Value{object.IntValue(h)}, nil
	})

	reg.Register("java/lang/System", "currentTimeMillis", "()J", true, func(e any, args []object.Value) ([]object.Value, error) {
		return []object.Value{object.LongValue(time.Now().UnixMilli())}, nil
	})

	reg.Register("java/lang/System", "nanoTime", "()J", true, func(e any, args []object.Value) ([]object.Value, error) {
		return []object.Value{object.LongValue(time.Now().UnixNano())}, nil
	})

	reg.Register("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", true,
		func(e any, args []object.Value) ([]object.Value, error) {
			de := env(e)
			src, ok := object.AsArray(args[0].Ref)
			if !ok {
				return nil, de.Throw("java/lang/ArrayStoreException", "System.arraycopy: src is not an array")
			}
			dst, ok := object.AsArray(args[2].Ref)
			if !ok {
				return nil, de.Throw("java/lang/ArrayStoreException", "System.arraycopy: dest is not an array")
			}
			srcPos, destPos, length := args[1].Int(), args[3].Int(), args[4].Int()
			if srcPos < 0 || destPos < 0 || length < 0 ||
				int(srcPos+length) > src.Len() || int(destPos+length) > dst.Len() {
				return nil, de.Throw("java/lang/ArrayIndexOutOfBoundsException", "System.arraycopy: out of bounds")
			}
			buf := make([]object.Value, length)
			for i := int32(0); i < length; i++ {
				v, err := src.Get(int(srcPos + i))
				if err != nil {
					return nil, err
				}
				buf[i] = v
			}
			for i := int32(0); i < length; i++ {
				if err := dst.Set(int(destPos+i), buf[i]); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
}

func registerClass(reg *Registry) {
	reg.Register("java/lang/Class", "getName", "()Ljava/lang/String;", false, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		m, ok := object.AsMirror(args[0].Ref)
		if !ok {
			return nil, de.Throw("java/lang/IllegalStateException", "Class.getName on non-mirror reference")
		}
		dotted := javaName(m.Reflects.NameStr())
		inst := de.Dispatch.Strings.Intern(dotted)
		return []object.Value{object.RefValue(&inst.Header)}, nil
	})

	reg.Register("java/lang/Class", "forName", "(Ljava/lang/String;)Ljava/lang/Class;", true, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		if args[0].Ref == nil {
			return nil, de.Throw("java/lang/NullPointerException", "Class.forName: name is null")
		}
		inst, ok := object.AsInstance(args[0].Ref)
		if !ok {
			return nil, de.Throw("java/lang/NullPointerException", "Class.forName: name is not a String")
		}
		dotted, ok := de.Dispatch.Strings.Contents(inst)
		if !ok {
			return nil, de.Throw("java/lang/NullPointerException", "Class.forName: name is not a String")
		}
		class, err := de.Dispatch.Loader.Load(internalName(dotted))
		if err != nil {
			if errors.Is(err, classloader.ErrClassNotFound) {
				return nil, de.Throw(except.ClassNotFoundException, dotted)
			}
			return nil, de.Throw(except.NoClassDefFoundError, err.Error())
		}
		mirror := class.Mirror()
		return []object.Value{object.RefValue(&mirror.Header)}, nil
	})

	reg.Register("java/lang/Class", "isInstance", "(Ljava/lang/Object;)Z", false, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		m, ok := object.AsMirror(args[0].Ref)
		if !ok {
			return nil, de.Throw("java/lang/IllegalStateException", "Class.isInstance on non-mirror reference")
		}
		if args[1].Ref == nil {
			return []object.Value{object.IntValue(0)}, nil
		}
		if args[1].Ref.Class().IsAssignableTo(m.Reflects) {
			return []object.Value{object.IntValue(1)}, nil
		}
		return []object.Value{object.IntValue(0)}, nil
	})
}

// javaName converts the internal slash form a Class carries
// (java/lang/String) into the dotted form Class.getName() returns
// (java.lang.String).
func javaName(internal string) string {
	b := []byte(internal)
	for i, c := range b {
		if c == '/' {
			b[i] = '.'
		}
	}
	return string(b)
}

// internalName is javaName's inverse: the dotted form Class.forName()
// takes (java.lang.String) back to the slash form the loader indexes
// classes by (java/lang/String).
func internalName(dotted string) string {
	b := []byte(dotted)
	for i, c := range b {
		if c == '.' {
			b[i] = '/'
		}
	}
	return string(b)
}

func registerThread(reg *Registry) {
	reg.Register("java/lang/Thread", "currentThread", "()Ljava/lang/Thread;", true, func(e any, args []object.Value) ([]object.Value, error) {
		de := env(e)
		if de.Thread.Mirror == nil {
			return nil, de.Throw("java/lang/IllegalStateException", "Thread.currentThread: no mirror attached")
		}
		return []object.Value{object.RefValue(&de.Thread.Mirror.Header)}, nil
	})

	reg.Register("java/lang/Thread", "interrupt", "()V", false, func(e any, args []object.Value) ([]object.Value, error) {
		env(e).Thread.Interrupt()
		return nil, nil
	})

	reg.Register("java/lang/Thread", "isInterrupted", "()Z", false, func(e any, args []object.Value) ([]object.Value, error) {
		if env(e).Thread.IsInterrupted() {
			return []object.Value{object.IntValue(1)}, nil
		}
		return []object.Value{object.IntValue(0)}, nil
	})
}

func registerThrowable(reg *Registry) {
	reg.Register("java/lang/Throwable", "fillInStackTrace", "()Ljava/lang/Throwable;", false,
		func(e any, args []object.Value) ([]object.Value, error) {
			de := env(e)
			inst, ok := object.AsInstance(args[0].Ref)
			if !ok {
				return nil, de.Throw("java/lang/NullPointerException", "Throwable.fillInStackTrace on null")
			}
			entries := except.CaptureBacktrace(de.Thread.Frames)
			except.AttachBacktrace(inst, entries)
			return []object.Value{args[0]}, nil
		})
}

// registerPrintStream wires System.out/System.err's println family to
// real output, the one native surface every toy Java program touches
// (the teacher's PrintStream.Println generalized from a single
// io.Writer field into two fixed streams keyed by descriptor).
func registerPrintStream(reg *Registry) {
	register := func(descriptor string, format func(de *dispatch.Env, v object.Value) string) {
		reg.Register("java/io/PrintStream", "println", descriptor, false, func(e any, args []object.Value) ([]object.Value, error) {
			de := env(e)
			w := streamWriter(args[0].Ref)
			if len(args) > 1 {
				fmt.Fprintln(w, format(de, args[1]))
			} else {
				fmt.Fprintln(w)
			}
			return nil, nil
		})
		reg.Register("java/io/PrintStream", "print", descriptor[:len(descriptor)-1]+"V", false, func(e any, args []object.Value) ([]object.Value, error) {
			de := env(e)
			w := streamWriter(args[0].Ref)
			if len(args) > 1 {
				fmt.Fprint(w, format(de, args[1]))
			}
			return nil, nil
		})
	}

	register("()V", nil)
	register("(Ljava/lang/String;)V", func(de *dispatch.Env, v object.Value) string {
		if v.Ref == nil {
			return "null"
		}
		if inst, ok := object.AsInstance(v.Ref); ok {
			if s, ok := de.Dispatch.Strings.Contents(inst); ok {
				return s
			}
		}
		return "<string>"
	})
	register("(I)V", func(de *dispatch.Env, v object.Value) string { return fmt.Sprintf("%d", v.Int()) })
	register("(J)V", func(de *dispatch.Env, v object.Value) string { return fmt.Sprintf("%d", v.Long()) })
	register("(Z)V", func(de *dispatch.Env, v object.Value) string {
		if v.Int() != 0 {
			return "true"
		}
		return "false"
	})
	register("(C)V", func(de *dispatch.Env, v object.Value) string { return string(rune(v.Int())) })
	register("(D)V", func(de *dispatch.Env, v object.Value) string { return fmt.Sprintf("%g", v.Double()) })
	register("(F)V", func(de *dispatch.Env, v object.Value) string { return fmt.Sprintf("%g", v.Float()) })
}

var streamWriters = struct {
	mu sync.Mutex
	m  map[*object.Header]*os.File
}{m: make(map[*object.Header]*os.File)}

// BindStream records which file descriptor a given PrintStream
// instance writes to, so println dispatch can find it without a real
// java/io/PrintStream backing-field layout. Called once each for the
// standard output and error streams by vm.RunMain (through
// bindStandardStreams).
func BindStream(inst *object.Instance, f *os.File) {
	streamWriters.mu.Lock()
	defer streamWriters.mu.Unlock()
	streamWriters.m[&inst.Header] = f
}

func streamWriter(ref *object.Header) *os.File {
	streamWriters.mu.Lock()
	f, ok := streamWriters.m[ref]
	streamWriters.mu.Unlock()
	if !ok {
		return os.Stdout
	}
	return f
}

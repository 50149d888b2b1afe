// Package dispatch implements method dispatch and class initialization
// (spec.md §4.10 "Method dispatch", §4.5 step 8 "Initialization"): the
// only package that knows how to turn a resolved *object.Method into a
// running call, whether that call bottoms out in bytecode, a native
// function, or a polymorphic-signature entry-point override.
//
// dispatch imports interpreter to drive a method's bytecode
// (interpreter.VM.Run); interpreter only knows dispatch through the
// Dispatcher interface it declares, so the two packages never form an
// import cycle despite calling into each other at runtime.
package dispatch

import (
	"fmt"

	"github.com/jacobin-core/jvmcore/internal/vmlog"
	"github.com/jacobin-core/jvmcore/pkg/except"
	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/interpreter"
	"github.com/jacobin-core/jvmcore/pkg/object"
	"github.com/jacobin-core/jvmcore/pkg/thread"
)

// ClassResolver is what dispatch needs from the class loader: nothing
// beyond what interpreter.ClassResolver already requires, but declared
// separately so dispatch doesn't have to import classloader just to
// name its type.
type ClassResolver interface {
	Load(name string) (*object.Class, error)
}

// NativeRegistry looks up a registered native implementation for a
// method (spec.md §4.14 "Native method boundary"). Satisfied
// structurally by *native.Registry.
type NativeRegistry interface {
	Lookup(owner *object.Class, name, descriptor string, static bool) (object.NativeFunc, bool)
}

// Dispatcher implements interpreter.Dispatcher. It is constructed
// before the interpreter.VM it drives (the two reference each other),
// so Interp is wired in after both exist via SetInterpreter.
type Dispatcher struct {
	Loader  ClassResolver
	Native  NativeRegistry
	Interp  *interpreter.VM
	Except  *except.Factory
	Log     *vmlog.Logger
	Strings StringInterner
}

// StringInterner is what LinkCallSite's StringConcatFactory case needs
// to materialize a java.lang.String result. Satisfied by *strpool.Pool.
type StringInterner interface {
	Intern(utf8 string) *object.Instance
	Contents(inst *object.Instance) (string, bool)
}

// New constructs a Dispatcher. Callers must call SetInterpreter once
// the interpreter.VM that uses this Dispatcher is built.
func New(loader ClassResolver, native NativeRegistry, ex *except.Factory, strings StringInterner, log *vmlog.Logger) *Dispatcher {
	return &Dispatcher{Loader: loader, Native: native, Except: ex, Strings: strings, Log: log}
}

// SetInterpreter completes the two-way wiring between VM and Dispatcher.
func (d *Dispatcher) SetInterpreter(vm *interpreter.VM) { d.Interp = vm }

// Env is the native-call environment handed to object.NativeFunc
// implementations (spec.md §4.14): enough to allocate objects, throw,
// and re-enter the interpreter for a callback, without a native
// function needing to import dispatch/interpreter itself.
type Env struct {
	Thread   *thread.Thread
	Dispatch *Dispatcher
}

// Throw constructs and installs a runtime exception as env.Thread's
// pending exception, mirroring interpreter.VM.throw for native code.
// Returns interpreter.ErrPending so the propagation looks identical to
// an exception thrown by bytecode, however many Dispatch.Invoke* frames
// separate this native call from the interpreter loop that unwinds it.
func (e *Env) Throw(className, message string) error {
	inst, err := e.Dispatch.Except.New(e.Thread.Frames, className, message)
	if err != nil {
		return err
	}
	e.Thread.Pending = inst
	return interpreter.ErrPending
}

// runMethod is the common tail of every Invoke* entry point: given a
// fully resolved method and its argument slots (receiver included for
// instance calls), run it to completion however its body says to run
// (spec.md §4.10 "Invocation bottoms out in one of: bytecode, a native
// function, or an entry-point override").
func (d *Dispatcher) runMethod(th *thread.Thread, m *object.Method, args []object.Value) (object.Value, error) {
	if m.EntryPoint != nil {
		fake := frame.NewFake(m)
		th.Push(fake)
		defer th.Pop()
		results, err := m.EntryPoint(th, args)
		if err != nil {
			return object.Value{}, err
		}
		return firstOrVoid(results), nil
	}

	if m.IsNative() {
		fn, ok := d.lookupNative(m)
		if !ok {
			return object.Value{}, fmt.Errorf("UnsatisfiedLinkError: %s.%s%s", m.Owner.NameStr(), m.NameStr, m.DescriptorStr)
		}
		nf := frame.NewNative(m)
		th.Push(nf)
		defer th.Pop()
		env := &Env{Thread: th, Dispatch: d}
		results, err := fn(env, args)
		if err != nil {
			return object.Value{}, err
		}
		return firstOrVoid(results), nil
	}

	if m.Code == nil {
		return object.Value{}, fmt.Errorf("AbstractMethodError: %s.%s%s", m.Owner.NameStr(), m.NameStr, m.DescriptorStr)
	}

	fr := frame.NewRegular(m)
	slot := 0
	for _, v := range args {
		fr.SetLocal(slot, v)
		slot += v.Category()
	}
	th.Push(fr)
	defer th.Pop()
	if m.AccessFlags&0x0020 != 0 { // ACC_SYNCHRONIZED
		recvOrClass := syncTarget(m, args)
		mon := recvOrClass.Monitor(th.NextHashSeed)
		mon.Enter(th.ID)
		fr.MonitorHeld = recvOrClass
		defer func() {
			mon.Exit(th.ID)
		}()
	}
	return d.Interp.Run(th, fr)
}

// syncTarget is the object a synchronized method locks: the receiver
// for an instance method, the declaring class's mirror for a static
// one (spec.md §4.9 "Synchronization").
func syncTarget(m *object.Method, args []object.Value) *object.Header {
	if !m.IsStatic() && len(args) > 0 && args[0].Ref != nil {
		return args[0].Ref
	}
	return &m.Owner.Mirror().Header
}

func firstOrVoid(results []object.Value) object.Value {
	if len(results) == 0 {
		return object.Value{}
	}
	return results[0]
}

func (d *Dispatcher) lookupNative(m *object.Method) (object.NativeFunc, bool) {
	if d.Native == nil {
		return nil, false
	}
	return d.Native.Lookup(m.Owner, m.NameStr, m.DescriptorStr, m.IsStatic())
}

// InvokeStatic implements interpreter.Dispatcher.InvokeStatic.
func (d *Dispatcher) InvokeStatic(th *thread.Thread, m *object.Method, args []object.Value) (object.Value, error) {
	return d.runMethod(th, m, args)
}

// InvokeSpecial implements interpreter.Dispatcher.InvokeSpecial: the
// resolved method is called directly, with no virtual re-dispatch
// (spec.md §4.10 "invokespecial").
func (d *Dispatcher) InvokeSpecial(th *thread.Thread, m *object.Method, args []object.Value) (object.Value, error) {
	return d.runMethod(th, m, args)
}

// InvokeVirtual implements interpreter.Dispatcher.InvokeVirtual: the
// statically resolved method only supplies a vtable slot; the actual
// body comes from the receiver's runtime class (spec.md §4.10
// "invokevirtual").
func (d *Dispatcher) InvokeVirtual(th *thread.Thread, m *object.Method, args []object.Value) (object.Value, error) {
	if len(args) == 0 || args[0].Ref == nil {
		return object.Value{}, fmt.Errorf("invokevirtual: missing receiver")
	}
	recvClass := args[0].Ref.Class()
	actual := m
	if m.VTableIndex >= 0 && m.VTableIndex < len(recvClass.VTable) {
		actual = recvClass.VTable[m.VTableIndex]
	}
	return d.runMethod(th, actual, args)
}

// InvokeInterface implements interpreter.Dispatcher.InvokeInterface:
// resolves through the receiver's itable entry for iface (spec.md
// §4.10 "invokeinterface").
func (d *Dispatcher) InvokeInterface(th *thread.Thread, iface *object.Class, m *object.Method, args []object.Value) (object.Value, error) {
	if len(args) == 0 || args[0].Ref == nil {
		return object.Value{}, fmt.Errorf("invokeinterface: missing receiver")
	}
	recvClass := args[0].Ref.Class()
	index := -1
	for i, im := range iface.Methods {
		if im.NameStr == m.NameStr && im.DescriptorStr == m.DescriptorStr {
			index = i
			break
		}
	}
	if index < 0 {
		return object.Value{}, fmt.Errorf("NoSuchMethodError: %s.%s%s", iface.NameStr(), m.NameStr, m.DescriptorStr)
	}
	impls := recvClass.ITable[iface]
	if impls == nil || index >= len(impls) || impls[index] == nil {
		return object.Value{}, fmt.Errorf("AbstractMethodError: %s.%s%s", recvClass.NameStr(), m.NameStr, m.DescriptorStr)
	}
	return d.runMethod(th, impls[index], args)
}

// InvokeDynamic implements interpreter.Dispatcher.InvokeDynamic: the
// call site's target handle is itself a resolved method; this
// dispatches on the handle's kind the same way a MethodHandle.invoke
// would (spec.md §4.10 "Method handles").
func (d *Dispatcher) InvokeDynamic(th *thread.Thread, cs *object.CallSite, args []object.Value) (object.Value, error) {
	if cs == nil || cs.Target == nil {
		return object.Value{}, fmt.Errorf("invokedynamic: unlinked call site")
	}
	return d.invokeHandle(th, cs.Target, args)
}

// invokeHandle dispatches a MethodHandle by its reference_kind (spec.md
// §4.10 "Method handles"): field accessors read/write through args[0],
// the four invoke kinds bottom out in runMethod the same way the
// invoke* opcodes do.
func (d *Dispatcher) invokeHandle(th *thread.Thread, mh *object.MethodHandle, args []object.Value) (object.Value, error) {
	switch mh.Kind {
	case object.RefGetField:
		inst, ok := object.AsInstance(args[0].Ref)
		if !ok {
			return object.Value{}, fmt.Errorf("method handle getfield: not an instance")
		}
		return inst.GetField(mh.Field.Index), nil
	case object.RefPutField:
		inst, ok := object.AsInstance(args[0].Ref)
		if !ok {
			return object.Value{}, fmt.Errorf("method handle putfield: not an instance")
		}
		inst.SetField(mh.Field.Index, args[1])
		return object.Value{}, nil
	case object.RefGetStatic:
		return mh.Field.Owner.StaticBlock[mh.Field.Offset], nil
	case object.RefPutStatic:
		mh.Field.Owner.StaticBlock[mh.Field.Offset] = args[0]
		return object.Value{}, nil
	case object.RefInvokeStatic:
		return d.InvokeStatic(th, mh.Method, args)
	case object.RefInvokeSpecial, object.RefNewInvokeSpecial:
		return d.InvokeSpecial(th, mh.Method, args)
	case object.RefInvokeInterface:
		return d.InvokeInterface(th, mh.Method.Owner, mh.Method, args)
	default: // RefInvokeVirtual
		return d.InvokeVirtual(th, mh.Method, args)
	}
}

// EnsureInitialized implements interpreter.Dispatcher.EnsureInitialized:
// the JLS §5.5 state machine, recursing into the superclass and any
// superinterface that declares a default method before running this
// class's own <clinit> (spec.md §4.5 "Initialization").
func (d *Dispatcher) EnsureInitialized(th *thread.Thread, class *object.Class) error {
	if class.Kind == object.KindArray || class.Kind == object.KindPrimitive {
		return nil
	}
	if class.Super != nil {
		if err := d.EnsureInitialized(th, class.Super); err != nil {
			return err
		}
	}
	for _, iface := range class.Interfaces {
		if declaresDefaultMethod(iface) {
			if err := d.EnsureInitialized(th, iface); err != nil {
				return err
			}
		}
	}

	proceed, err := class.EnterInitialization(th.ID)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	clinit := class.FindMethod("<clinit>", "()V")
	if clinit == nil {
		class.FinishInitialization(nil)
		return nil
	}
	_, runErr := d.runMethod(th, clinit, nil)
	if runErr != nil && runErr != interpreter.ErrPending {
		class.FinishInitialization(runErr)
		return runErr
	}
	if th.Pending != nil {
		cause := fmt.Errorf("%s", th.Pending.Class().NameStr())
		th.Pending = nil
		class.FinishInitialization(cause)
		return fmt.Errorf("ExceptionInInitializerError: %w", cause)
	}
	class.FinishInitialization(nil)
	return nil
}

func declaresDefaultMethod(iface *object.Class) bool {
	for _, m := range iface.Methods {
		if !m.IsStatic() && !m.IsAbstract() && m.NameStr != "<clinit>" {
			return true
		}
	}
	for _, super := range iface.Interfaces {
		if declaresDefaultMethod(super) {
			return true
		}
	}
	return false
}

var _ interpreter.Dispatcher = (*Dispatcher)(nil)

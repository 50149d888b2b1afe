package symbol

import "sync"

// wellKnownNames lists the class, method, and field names the VM compares
// against by identity often enough that the spec calls for pre-registering
// them at low, stable indices (spec.md §4.1, §9). Order matters: it fixes
// which small integer each constant below resolves to.
var wellKnownNames = []string{
	// Core object model.
	"java/lang/Object",
	"java/lang/Class",
	"java/lang/ClassLoader",
	"java/lang/String",
	"java/lang/StringBuilder",
	"java/lang/StringBuffer",
	"java/lang/Enum",
	"java/lang/Record",
	"java/lang/Thread",
	"java/lang/ThreadGroup",
	"java/lang/Runnable",

	// Primitive wrapper classes, in JVMS order.
	"java/lang/Boolean",
	"java/lang/Byte",
	"java/lang/Character",
	"java/lang/Short",
	"java/lang/Integer",
	"java/lang/Long",
	"java/lang/Float",
	"java/lang/Double",
	"java/lang/Void",

	// Throwable hierarchy consulted during exception dispatch and linkage.
	"java/lang/Throwable",
	"java/lang/Exception",
	"java/lang/RuntimeException",
	"java/lang/Error",
	"java/lang/StackTraceElement",
	"java/lang/NullPointerException",
	"java/lang/ArrayIndexOutOfBoundsException",
	"java/lang/IndexOutOfBoundsException",
	"java/lang/ArrayStoreException",
	"java/lang/ClassCastException",
	"java/lang/ArithmeticException",
	"java/lang/NegativeArraySizeException",
	"java/lang/IllegalMonitorStateException",
	"java/lang/IllegalArgumentException",
	"java/lang/IllegalStateException",
	"java/lang/InterruptedException",
	"java/lang/CloneNotSupportedException",
	"java/lang/UnsupportedOperationException",
	"java/lang/NoSuchFieldError",
	"java/lang/NoSuchMethodError",
	"java/lang/NoSuchFieldException",
	"java/lang/NoSuchMethodException",
	"java/lang/NoClassDefFoundError",
	"java/lang/ClassNotFoundException",
	"java/lang/ClassFormatError",
	"java/lang/IncompatibleClassChangeError",
	"java/lang/AbstractMethodError",
	"java/lang/VerifyError",
	"java/lang/UnsatisfiedLinkError",
	"java/lang/IllegalAccessError",
	"java/lang/StackOverflowError",
	"java/lang/OutOfMemoryError",
	"java/lang/ExceptionInInitializerError",

	// Arrays / reflection.
	"java/lang/Cloneable",
	"java/io/Serializable",
	"java/lang/reflect/Field",
	"java/lang/reflect/Method",
	"java/lang/reflect/Constructor",
	"java/lang/reflect/Array",

	// java.lang.invoke — method handles and polymorphic signatures.
	"java/lang/invoke/MethodHandle",
	"java/lang/invoke/VarHandle",
	"java/lang/invoke/MethodType",
	"java/lang/invoke/MethodHandles",
	"java/lang/invoke/MethodHandleNatives",
	"java/lang/invoke/MemberName",
	"java/lang/invoke/LambdaMetafactory",
	"java/lang/invoke/StringConcatFactory",
	"java/lang/invoke/CallSite",

	// Collections exercised by gfunction-equivalent native methods.
	"java/util/HashMap",
	"java/util/ArrayList",
	"java/util/List",
	"java/util/Map",
	"java/util/Collections",

	// I/O.
	"java/io/PrintStream",

	// Member/attribute/method names compared by identity throughout the
	// interpreter and dispatcher.
	"<init>",
	"<clinit>",
	"hashCode",
	"equals",
	"toString",
	"wait",
	"notify",
	"notifyAll",
	"getClass",
	"clone",
	"finalize",
	"run",
	"main",
	"invoke",
	"invokeExact",
	"invokeBasic",
	"linkToStatic",
	"linkToVirtual",
	"linkToSpecial",
	"linkToInterface",
	"fillInStackTrace",
	"registerNatives",

	// Attribute names the class-file reader recognizes (spec.md §4.2).
	"Code",
	"StackMapTable",
	"ConstantValue",
	"Exceptions",
	"InnerClasses",
	"EnclosingMethod",
	"Synthetic",
	"Signature",
	"SourceFile",
	"LineNumberTable",
	"LocalVariableTable",
	"LocalVariableTypeTable",
	"RuntimeVisibleAnnotations",
	"RuntimeInvisibleAnnotations",
	"RuntimeVisibleParameterAnnotations",
	"RuntimeInvisibleParameterAnnotations",
	"RuntimeVisibleTypeAnnotations",
	"RuntimeInvisibleTypeAnnotations",
	"AnnotationDefault",
	"BootstrapMethods",
	"MethodParameters",
	"Module",
	"ModulePackages",
	"ModuleMainClass",
	"NestHost",
	"NestMembers",
	"Record",
	"PermittedSubclasses",
}

var (
	globalOnce  sync.Once
	globalTable *Table
)

// Global returns the process-wide symbol table, creating and pre-populating
// it on first use. Every production entry point goes through this
// accessor; tests that need a pristine table construct their own with
// NewTable so interning stays deterministic across test cases.
func Global() *Table {
	globalOnce.Do(func() {
		globalTable = NewTable()
		for _, name := range wellKnownNames {
			globalTable.Intern(name)
		}
	})
	return globalTable
}

// Well-known symbols, fixed by the order of wellKnownNames above. Code that
// wants to compare a resolved Symbol against "is this java/lang/Object"
// does so with an integer comparison against these constants instead of a
// Lookup + string compare.
var (
	SymObject  = Symbol(1)
	SymClass   = Symbol(2)
	SymThrowable Symbol
	SymInit      Symbol
	SymClinit    Symbol
)

func init() {
	// Resolve the handful of symbols referenced by name elsewhere in the
	// core, rather than hardcoding fragile offsets for every one of them.
	t := Global()
	SymThrowable = t.Intern("java/lang/Throwable")
	SymInit = t.Intern("<init>")
	SymClinit = t.Intern("<clinit>")
}

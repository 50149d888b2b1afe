package object

// BuildVTable constructs this class's V-table per spec.md §4.4
// "V-table construction": start from the superclass's V-table, then for
// each method declared here, replace an overridden slot in place or
// append a new one. Must run after Super is set and this class's own
// Methods are populated.
func (c *Class) BuildVTable() {
	var base []*Method
	if c.Super != nil {
		base = append(base, c.Super.VTable...)
	}

	for _, m := range c.Methods {
		if m.IsStatic() || m.NameStr == "<init>" {
			continue // static and instance-init methods are never virtually dispatched
		}
		replaced := false
		for i, slot := range base {
			if slot.NameStr == m.NameStr && slot.DescriptorStr == m.DescriptorStr && overrides(slot, m) {
				base[i] = m
				m.VTableIndex = i
				replaced = true
				break
			}
		}
		if !replaced {
			m.VTableIndex = len(base)
			base = append(base, m)
		}
	}
	c.VTable = base
}

// overrides reports whether m (declared on a subclass) is permitted to
// override the inherited slot, per spec.md §3 "Class" invariant
// ("vtable[i] ... override-compatible with super.vtable[i]") and JLS
// §8.4.8: a private or static super method cannot be overridden.
func overrides(superSlot, m *Method) bool {
	return !superSlot.IsPrivate() && !superSlot.IsStatic()
}

// BuildITable constructs the interface dispatch table: for each
// interface this class implements (directly or transitively), a mapping
// from the interface's own method order to this class's concrete
// implementation, filling in the interface's default method body where
// this class supplies none (spec.md §4.4 "V-table construction").
func (c *Class) BuildITable() {
	c.ITable = make(map[*Class][]*Method)
	seen := map[*Class]bool{}
	var visit func(iface *Class)
	visit = func(iface *Class) {
		if seen[iface] {
			return
		}
		seen[iface] = true

		impls := make([]*Method, len(iface.Methods))
		for i, im := range iface.Methods {
			if im.IsStatic() {
				continue
			}
			if concrete := c.ResolveMethod(im.NameStr, im.DescriptorStr); concrete != nil && !concrete.IsAbstract() {
				impls[i] = concrete
			} else if !im.IsAbstract() {
				impls[i] = im // interface default method, no override
			}
		}
		c.ITable[iface] = impls

		for _, super := range iface.Interfaces {
			visit(super)
		}
	}
	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			visit(iface)
		}
	}
}

// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

// LayoutStruct computes member offsets for a struct/union type, per
// spec.md §4.3: natural alignment unless `packed`, bit-fields packed
// within their underlying type's storage unit (straddling forbidden),
// and a trailing flexible array member contributes zero size.
//
// It mutates t in place (Members[i].Offset/BitOffset, t.Size, t.Align)
// and returns a diagnostic-worthy error string, or "" on success.
func LayoutStruct(t *Type) string {
	if t.Kind == TyUnion {
		return layoutUnion(t)
	}
	offset := 0
	maxAlign := 1
	bitUnitOffset := -1 // byte offset of the currently-open bit-field storage unit
	bitUnitSize := 0    // size in bytes of that storage unit
	bitsUsed := 0

	closeBitUnit := func() {
		if bitUnitOffset >= 0 {
			offset = bitUnitOffset + bitUnitSize
		}
		bitUnitOffset = -1
		bitsUsed = 0
	}

	for i := range t.Members {
		m := &t.Members[i]
		if m.IsBitField {
			unitSize := SizeOf(m.Type)
			if unitSize == 0 {
				unitSize = 4
			}
			if bitUnitOffset < 0 || bitsUsed+m.BitWidth > unitSize*8 || unitSize != bitUnitSize {
				closeBitUnit()
				align := unitSize
				if t.Packed {
					align = 1
				}
				offset = alignUp(offset, align)
				bitUnitOffset = offset
				bitUnitSize = unitSize
				bitsUsed = 0
			}
			m.Offset = bitUnitOffset
			m.BitOffset = bitsUsed
			m.Align = bitUnitSize
			bitsUsed += m.BitWidth
			if bitUnitSize > maxAlign && !t.Packed {
				maxAlign = bitUnitSize
			}
			continue
		}
		closeBitUnit()
		if m.Type.Unqualified().Kind == TyArray && m.Type.Unqualified().ArrayExtentKind == ArrayNoExtent {
			// flexible array member: must be last, contributes no size
			align := AlignOf(m.Type.Unqualified().Elem)
			if t.Packed {
				align = 1
			}
			offset = alignUp(offset, align)
			m.Offset = offset
			m.Align = align
			continue
		}
		align := AlignOf(m.Type)
		if t.Packed {
			align = 1
		}
		if align > maxAlign {
			maxAlign = align
		}
		offset = alignUp(offset, align)
		m.Offset = offset
		m.Align = align
		offset += SizeOf(m.Type)
	}
	closeBitUnit()

	if fa, ok := findAttrAligned(t); ok {
		maxAlign = fa
	}
	t.Align = maxAlign
	t.Size = alignUp(offset, maxAlign)
	t.Complete = true
	return ""
}

func layoutUnion(t *Type) string {
	size, align := 0, 1
	for i := range t.Members {
		m := &t.Members[i]
		sz := SizeOf(m.Type)
		al := AlignOf(m.Type)
		if m.IsBitField {
			sz = SizeOf(m.Type)
			al = sz
		}
		if t.Packed {
			al = 1
		}
		m.Offset = 0
		m.BitOffset = 0
		m.Align = al
		if sz > size {
			size = sz
		}
		if al > align {
			align = al
		}
	}
	if fa, ok := findAttrAligned(t); ok {
		align = fa
	}
	t.Align = align
	t.Size = alignUp(size, align)
	t.Complete = true
	return ""
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// findAttrAligned is a hook populated by the parser (parseStructOrUnionSpecifier) when a
// struct carries `__attribute__((aligned(n)))`; layout.go itself only
// consults it, since AttrSet lives on the declaring Symbol, not the Type.
var structAlignOverride = map[*Type]int{}

func findAttrAligned(t *Type) (int, bool) {
	v, ok := structAlignOverride[t]
	return v, ok
}

// AssignEnumValues computes enum constant values by the sequential-plus-
// one rule of spec.md §4.3, using ce to fold any explicit initializer.
func AssignEnumValues(consts []EnumConst, exprs []Expr, ce *ConstEvaluator, diags *Diagnostics) {
	next := int64(0)
	for i := range consts {
		if exprs[i] != nil {
			v, ok := ce.EvalInt(exprs[i])
			if !ok {
				diags.Errorf(exprs[i].Position(), "enumerator value for %q is not an integer constant expression", consts[i].Name)
			} else {
				next = v
			}
		}
		consts[i].Value = next
		next++
	}
}

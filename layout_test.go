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

import "testing"

func intType(rank IntRank) *Type { return &Type{Kind: TyInt, IntRank: rank} }

func TestLayoutStructNaturalAlignment(t *testing.T) {
	// struct { char c; int i; } packs a 3-byte pad before i.
	st := &Type{Kind: TyStruct, Members: []Member{
		{Name: "c", Type: intType(RankChar)},
		{Name: "i", Type: intType(RankInt)},
	}}
	if errMsg := LayoutStruct(st); errMsg != "" {
		t.Fatalf("LayoutStruct error: %s", errMsg)
	}
	if st.Members[0].Offset != 0 {
		t.Errorf("c offset = %d, want 0", st.Members[0].Offset)
	}
	if st.Members[1].Offset != 4 {
		t.Errorf("i offset = %d, want 4", st.Members[1].Offset)
	}
	if st.Size != 8 {
		t.Errorf("struct size = %d, want 8", st.Size)
	}
}

func TestLayoutUnionSharesOffsetZero(t *testing.T) {
	un := &Type{Kind: TyUnion, Members: []Member{
		{Name: "i", Type: intType(RankInt)},
		{Name: "c", Type: intType(RankChar)},
	}}
	if errMsg := LayoutStruct(un); errMsg != "" {
		t.Fatalf("LayoutStruct error: %s", errMsg)
	}
	for i, m := range un.Members {
		if m.Offset != 0 {
			t.Errorf("member %d offset = %d, want 0", i, m.Offset)
		}
	}
	if un.Size != 4 {
		t.Errorf("union size = %d, want 4", un.Size)
	}
}

func TestLayoutBitFieldsPackIntoSameUnit(t *testing.T) {
	st := &Type{Kind: TyStruct, Members: []Member{
		{Name: "a", Type: intType(RankInt), IsBitField: true, BitWidth: 1},
		{Name: "b", Type: intType(RankInt), IsBitField: true, BitWidth: 3},
		{Name: "c", Type: intType(RankInt), IsBitField: true, BitWidth: 4},
	}}
	if errMsg := LayoutStruct(st); errMsg != "" {
		t.Fatalf("LayoutStruct error: %s", errMsg)
	}
	if st.Members[0].Offset != st.Members[1].Offset || st.Members[1].Offset != st.Members[2].Offset {
		t.Fatalf("bit-fields did not share a storage unit: %+v", st.Members)
	}
	if st.Members[0].BitOffset != 0 || st.Members[1].BitOffset != 1 || st.Members[2].BitOffset != 4 {
		t.Fatalf("bit offsets wrong: %+v", st.Members)
	}
	if st.Size != 4 {
		t.Errorf("struct size = %d, want 4", st.Size)
	}
}

func TestLayoutPackedStructHasNoPadding(t *testing.T) {
	st := &Type{Kind: TyStruct, Packed: true, Members: []Member{
		{Name: "c", Type: intType(RankChar)},
		{Name: "i", Type: intType(RankInt)},
	}}
	if errMsg := LayoutStruct(st); errMsg != "" {
		t.Fatalf("LayoutStruct error: %s", errMsg)
	}
	if st.Members[1].Offset != 1 {
		t.Errorf("packed i offset = %d, want 1", st.Members[1].Offset)
	}
	if st.Size != 5 {
		t.Errorf("packed struct size = %d, want 5", st.Size)
	}
}

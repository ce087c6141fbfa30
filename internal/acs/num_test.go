package acs

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Num
	}{
		{"integer", "3344006", Of(3344006)},
		{"decimal", "52031.5", Of(52031.5)},
		{"padded", "  42 ", Of(42)},
		{"zero", "0", Of(0)},
		{"empty", "", Null},
		{"text", "N/A", Null},
		{"sentinel 666", "-666666666", Null},
		{"sentinel 999", "-999999999", Null},
		{"sentinel 222", "-222222222", Null},
		{"ordinary negative", "-1200", Of(-1200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNum_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Num
	}{
		{"number", `123`, Of(123)},
		{"string number", `"456"`, Of(456)},
		{"empty string", `""`, Null},
		{"null", `null`, Null},
		{"sentinel number", `-666666666`, Null},
		{"sentinel string", `"-888888888"`, Null},
		{"bool", `true`, Null},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Num
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Num = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNum_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Num `json:"a"`
		B Num `json:"b"`
	}{A: Of(17.5), B: Null})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"a":17.5,"b":null}` {
		t.Errorf("Marshal = %s", b)
	}
}

func TestNum_Arithmetic(t *testing.T) {
	if got := Of(10).Add(Of(5)); got != Of(15) {
		t.Errorf("Add = %v, want 15", got)
	}
	if got := Of(10).Sub(Of(15)); got != Of(-5) {
		t.Errorf("Sub = %v, want -5", got)
	}
	if got := Of(10).Div(Of(4)); got != Of(2.5) {
		t.Errorf("Div = %v, want 2.5", got)
	}
	if got := Of(3).Scale(1000); got != Of(3000) {
		t.Errorf("Scale = %v, want 3000", got)
	}
	if got := Sum(Of(1), Of(2), Of(3)); got != Of(6) {
		t.Errorf("Sum = %v, want 6", got)
	}
}

func TestNum_NullPropagation(t *testing.T) {
	tests := []struct {
		name string
		got  Num
	}{
		{"add left", Null.Add(Of(1))},
		{"add right", Of(1).Add(Null)},
		{"sub", Of(1).Sub(Null)},
		{"div null numerator", Null.Div(Of(2))},
		{"div null denominator", Of(2).Div(Null)},
		{"div zero", Of(2).Div(Of(0))},
		{"zero over zero", Of(0).Div(Of(0))},
		{"scale", Null.Scale(100)},
		{"sum", Sum(Of(1), Null, Of(3))},
		{"nan", Of(math.NaN())},
		{"inf", Of(math.Inf(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Valid() {
				t.Errorf("expected null, got %v", tt.got)
			}
		})
	}
}

func TestNum_Greater(t *testing.T) {
	if !Of(2).Greater(Of(1)) {
		t.Error("2 > 1 should be true")
	}
	if Of(1).Greater(Of(1)) {
		t.Error("equal values must not compare greater")
	}
	if Null.Greater(Of(1)) || Of(1).Greater(Null) {
		t.Error("null comparisons must be false")
	}
}

func TestTable_Codes(t *testing.T) {
	codes := InMigration.Codes()
	want := []string{"NAME", "B07009_001E", "B07009_025E", "B07009_029E", "B07009_030E"}
	if len(codes) != len(want) {
		t.Fatalf("len(codes) = %d, want %d", len(codes), len(want))
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes[%d] = %q, want %q", i, codes[i], want[i])
		}
	}
	if InMigration.CacheKey() == OutMigration.CacheKey() {
		t.Error("cache keys must differ per table")
	}
}

func TestIndex_LaterDuplicateWins(t *testing.T) {
	idx := Index([]StateRecord{
		{State: "Ohio", Fields: map[string]Num{StockBachelors: Of(1)}},
		{State: "Ohio", Fields: map[string]Num{StockBachelors: Of(2)}},
	})
	if got := idx["Ohio"].Get(StockBachelors); got != Of(2) {
		t.Errorf("Ohio stock_bachelors = %v, want 2", got)
	}
	if got := idx["Ohio"].Get(StockMasters); got.Valid() {
		t.Errorf("absent field = %v, want null", got)
	}
}

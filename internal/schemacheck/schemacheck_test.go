package schemacheck

import (
	"testing"

	"github.com/sadopc/sqlgate/internal/catalog"
)

func testSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot([]catalog.Model{
		{
			Name: "customers",
			Columns: []catalog.Column{
				{Name: "id", IsPK: true},
				{Name: "name"},
				{Name: "email"},
				{Name: "tenant_id"},
			},
		},
		{
			Name: "orders",
			Columns: []catalog.Column{
				{Name: "id", IsPK: true},
				{Name: "customer_id"},
				{Name: "amount"},
				{Name: "created_at"},
			},
		},
		{Name: "order_items"},
		{Name: "events"}, // no column metadata
	}, nil, "v1")
}

func TestValidate_KnownTables(t *testing.T) {
	var v Validator
	snap := testSnapshot()

	tests := []struct {
		name   string
		sql    string
		tables []string
	}{
		{"single table", "SELECT * FROM customers", []string{"customers"}},
		{"case insensitive", "SELECT * FROM CUSTOMERS", []string{"customers"}},
		{"join", "SELECT * FROM customers c JOIN orders o ON o.customer_id = c.id", []string{"customers", "orders"}},
		{"schema qualified", "SELECT * FROM public.orders", []string{"orders"}},
		{"aliased with AS", "SELECT c.name FROM customers AS c", []string{"customers"}},
		{"repeated table counted once", "SELECT * FROM orders a JOIN orders b ON a.id = b.id", []string{"orders"}},
		{"comma join", "SELECT * FROM customers, orders", []string{"customers", "orders"}},
		{"comma join with aliases", "SELECT c.name, o.amount FROM customers c, orders o WHERE o.customer_id = c.id", []string{"customers", "orders"}},
		{"comma join three tables", "SELECT * FROM customers, orders, order_items", []string{"customers", "orders", "order_items"}},
		{"comma join past table function", "SELECT * FROM customers, generate_series(1, 3) g, orders", []string{"customers", "orders"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.sql, snap)
			if !res.OK() {
				t.Fatalf("Validate(%q) failed: tables=%+v columns=%+v",
					tt.sql, res.UnknownTables, res.UnknownColumns)
			}
			if len(res.Tables) != len(tt.tables) {
				t.Fatalf("Tables = %v, want %v", res.Tables, tt.tables)
			}
			for i, want := range tt.tables {
				if res.Tables[i] != want {
					t.Errorf("Tables[%d] = %q, want %q", i, res.Tables[i], want)
				}
			}
		})
	}
}

func TestValidate_UnknownTableWithSuggestion(t *testing.T) {
	var v Validator
	res := v.Validate("SELECT * FROM custmers", testSnapshot())

	if res.OK() {
		t.Fatal("expected unknown table")
	}
	if len(res.UnknownTables) != 1 {
		t.Fatalf("UnknownTables = %+v, want one entry", res.UnknownTables)
	}
	ref := res.UnknownTables[0]
	if ref.Name != "custmers" {
		t.Errorf("Name = %q, want custmers", ref.Name)
	}
	if len(ref.Suggestions) == 0 || ref.Suggestions[0] != "customers" {
		t.Errorf("Suggestions = %v, want customers first", ref.Suggestions)
	}
}

func TestValidate_UnknownTableNoCloseMatch(t *testing.T) {
	var v Validator
	res := v.Validate("SELECT * FROM zzyzx", testSnapshot())

	if res.OK() {
		t.Fatal("expected unknown table")
	}
	if len(res.UnknownTables[0].Suggestions) != 0 {
		t.Errorf("Suggestions = %v, want none for a distant name", res.UnknownTables[0].Suggestions)
	}
}

func TestValidate_CommaJoinItemsAllValidated(t *testing.T) {
	var v Validator
	snap := testSnapshot()

	// Every item of an old-style join list must be looked up; a typo
	// in the second position is as unknown as one after FROM.
	res := v.Validate("SELECT * FROM customers, ordrs", snap)
	if res.OK() {
		t.Fatal("expected unknown table in comma list")
	}
	if len(res.UnknownTables) != 1 || res.UnknownTables[0].Name != "ordrs" {
		t.Fatalf("UnknownTables = %+v, want ordrs", res.UnknownTables)
	}
	if len(res.UnknownTables[0].Suggestions) == 0 || res.UnknownTables[0].Suggestions[0] != "orders" {
		t.Errorf("Suggestions = %v, want orders first", res.UnknownTables[0].Suggestions)
	}

	// Aliases declared in the list qualify columns like JOIN aliases do.
	res = v.Validate("SELECT o.amont FROM customers c, orders o", snap)
	if len(res.UnknownColumns) != 1 || res.UnknownColumns[0].Name != "amont" {
		t.Errorf("UnknownColumns = %+v, want amont", res.UnknownColumns)
	}
}

func TestValidate_CTENamesAreNotTables(t *testing.T) {
	var v Validator
	sql := `WITH recent AS (SELECT * FROM orders WHERE created_at > '2024-01-01')
	        SELECT r.amount FROM recent r`

	res := v.Validate(sql, testSnapshot())
	if !res.OK() {
		t.Fatalf("CTE name treated as unknown: %+v", res.UnknownTables)
	}
	if len(res.Tables) != 1 || res.Tables[0] != "orders" {
		t.Errorf("Tables = %v, want [orders]", res.Tables)
	}
}

func TestValidate_Columns(t *testing.T) {
	var v Validator
	snap := testSnapshot()

	t.Run("known qualified column", func(t *testing.T) {
		res := v.Validate("SELECT c.email FROM customers c", snap)
		if !res.OK() {
			t.Errorf("unexpected failures: %+v", res.UnknownColumns)
		}
	})

	t.Run("unknown qualified column", func(t *testing.T) {
		res := v.Validate("SELECT c.emial FROM customers c", snap)
		if len(res.UnknownColumns) != 1 {
			t.Fatalf("UnknownColumns = %+v, want one entry", res.UnknownColumns)
		}
		ref := res.UnknownColumns[0]
		if ref.Table != "customers" {
			t.Errorf("Table = %q, want customers", ref.Table)
		}
		if len(ref.Suggestions) == 0 || ref.Suggestions[0] != "email" {
			t.Errorf("Suggestions = %v, want email first", ref.Suggestions)
		}
	})

	t.Run("table without column metadata is skipped", func(t *testing.T) {
		res := v.Validate("SELECT e.whatever FROM events e", snap)
		if !res.OK() {
			t.Errorf("column check should be skipped without metadata: %+v", res.UnknownColumns)
		}
	})

	t.Run("unresolvable qualifier is skipped", func(t *testing.T) {
		// "x" is neither a known alias nor a table; best effort means no error.
		res := v.Validate("SELECT x.name FROM customers", snap)
		if !res.OK() {
			t.Errorf("unresolvable qualifier should be skipped: %+v", res.UnknownColumns)
		}
	})
}

func TestValidate_FunctionFormsAreNotTables(t *testing.T) {
	var v Validator
	snap := testSnapshot()

	tests := []struct {
		name string
		sql  string
	}{
		{"extract", "SELECT EXTRACT(YEAR FROM o.created_at) FROM orders o"},
		{"table function", "SELECT * FROM generate_series(1, 10)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.sql, snap)
			if len(res.UnknownTables) != 0 {
				t.Errorf("false positive table refs: %+v", res.UnknownTables)
			}
		})
	}
}

func TestValidate_LiteralContentIgnored(t *testing.T) {
	var v Validator
	res := v.Validate("SELECT * FROM customers WHERE note = 'FROM bogus_table'", testSnapshot())
	if !res.OK() {
		t.Errorf("reference inside literal checked: %+v", res.UnknownTables)
	}
}

func TestSuggest_Threshold(t *testing.T) {
	v := Validator{SuggestionThreshold: 0.9}
	// distance 1 over length 9 is ~0.89, below a 0.9 threshold
	if got := v.suggest("custmers", []string{"customers"}); len(got) != 0 {
		t.Errorf("suggest with strict threshold = %v, want none", got)
	}

	v = Validator{SuggestionThreshold: 0.6}
	if got := v.suggest("custmers", []string{"customers"}); len(got) != 1 {
		t.Errorf("suggest = %v, want [customers]", got)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"customers", "customers", 1, 1},
		{"custmers", "customers", 0.85, 0.95},
		{"orders", "events", 0, 0.4},
		{"", "", 1, 1},
	}

	for _, tt := range tests {
		got := similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

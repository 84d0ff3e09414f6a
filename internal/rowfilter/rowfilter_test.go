package rowfilter

import (
	"errors"
	"strings"
	"testing"
)

func TestInject_NoWhere(t *testing.T) {
	got, err := Inject("SELECT * FROM support_tickets", "tenant_id = 7", []string{"support_tickets"})
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM support_tickets WHERE (tenant_id = 7)"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestInject_ExistingWhere(t *testing.T) {
	got, err := Inject(
		"SELECT * FROM support_tickets WHERE status = 'open'",
		"tenant_id = 7",
		[]string{"support_tickets"},
	)
	if err != nil {
		t.Fatal(err)
	}

	// The original condition must survive intact and be ANDed with
	// the predicate, not replaced by it.
	if !strings.Contains(got, "status = 'open'") {
		t.Errorf("original condition lost: %q", got)
	}
	if !strings.Contains(got, "tenant_id = 7") {
		t.Errorf("predicate missing: %q", got)
	}
	if !strings.Contains(got, ") AND ") {
		t.Errorf("conditions not combined with AND: %q", got)
	}
	if n := strings.Count(got, "tenant_id = 7"); n != 1 {
		t.Errorf("predicate appears %d times, want 1", n)
	}
}

func TestInject_BeforeTrailingClauses(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{
			"order by",
			"SELECT * FROM orders ORDER BY created_at DESC",
			"SELECT * FROM orders WHERE (tenant_id = 7) ORDER BY created_at DESC",
		},
		{
			"limit",
			"SELECT * FROM orders LIMIT 10",
			"SELECT * FROM orders WHERE (tenant_id = 7) LIMIT 10",
		},
		{
			"group by",
			"SELECT status, count(*) FROM orders GROUP BY status",
			"SELECT status, count(*) FROM orders WHERE (tenant_id = 7) GROUP BY status",
		},
		{
			"group order limit",
			"SELECT status, count(*) FROM orders GROUP BY status ORDER BY 2 DESC LIMIT 5",
			"SELECT status, count(*) FROM orders WHERE (tenant_id = 7) GROUP BY status ORDER BY 2 DESC LIMIT 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Inject(tt.sql, "tenant_id = 7", []string{"orders"})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestInject_WhereThenOrderBy(t *testing.T) {
	got, err := Inject(
		"SELECT * FROM orders WHERE amount > 100 ORDER BY amount",
		"tenant_id = 7",
		[]string{"orders"},
	)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM orders WHERE (amount > 100) AND (tenant_id = 7) ORDER BY amount"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestInject_PredicateWithORStaysGrouped(t *testing.T) {
	// An OR inside the predicate must stay inside its own parentheses;
	// otherwise its right arm escapes the original filter entirely.
	pred := "tenant_id = 7 OR owner_role = 'admin'"

	got, err := Inject("SELECT * FROM support_tickets WHERE status = 'open'", pred, []string{"support_tickets"})
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM support_tickets WHERE (status = 'open') AND (tenant_id = 7 OR owner_role = 'admin')"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}

	got, err = Inject("SELECT * FROM support_tickets", pred, []string{"support_tickets"})
	if err != nil {
		t.Fatal(err)
	}
	want = "SELECT * FROM support_tickets WHERE (tenant_id = 7 OR owner_role = 'admin')"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestInject_SubqueryWhereUntouched(t *testing.T) {
	sql := "SELECT * FROM orders WHERE customer_id IN (SELECT id FROM customers WHERE vip)"
	got, err := Inject(sql, "tenant_id = 7", []string{"orders"})
	if err != nil {
		t.Fatal(err)
	}
	// Predicate lands in the outer WHERE, once.
	if n := strings.Count(got, "tenant_id = 7"); n != 1 {
		t.Errorf("predicate appears %d times, want 1: %q", n, got)
	}
	if !strings.Contains(got, "(SELECT id FROM customers WHERE vip)") {
		t.Errorf("subquery altered: %q", got)
	}
}

func TestInject_UnionBranches(t *testing.T) {
	sql := "SELECT id FROM orders UNION ALL SELECT id FROM archived_orders"
	got, err := Inject(sql, "tenant_id = 7", []string{"orders", "archived_orders"})
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(got, "tenant_id = 7"); n != 2 {
		t.Errorf("predicate appears %d times, want one per branch: %q", n, got)
	}
	if !strings.Contains(got, "UNION ALL") {
		t.Errorf("set operator lost: %q", got)
	}
}

func TestInject_WithOuterQuery(t *testing.T) {
	sql := "WITH totals AS (SELECT customer_id, sum(amount) s FROM payments GROUP BY customer_id) SELECT * FROM orders JOIN totals ON totals.customer_id = orders.customer_id"
	got, err := Inject(sql, "orders.tenant_id = 7", []string{"orders"})
	if err != nil {
		t.Fatal(err)
	}
	// The outer query reads orders directly, so the predicate goes there.
	if !strings.Contains(got, "ON totals.customer_id = orders.customer_id WHERE (orders.tenant_id = 7)") {
		t.Errorf("predicate not in outer query: %q", got)
	}
	if n := strings.Count(got, "orders.tenant_id = 7"); n != 1 {
		t.Errorf("predicate appears %d times, want 1", n)
	}
}

func TestInject_WithCTEBody(t *testing.T) {
	sql := "WITH recent AS (SELECT * FROM orders WHERE created_at > '2024-01-01') SELECT count(*) FROM recent"
	got, err := Inject(sql, "tenant_id = 7", []string{"orders"})
	if err != nil {
		t.Fatal(err)
	}
	// The protected table only appears inside the CTE; the predicate
	// must land there, ANDed with the existing filter.
	if !strings.Contains(got, "created_at > '2024-01-01'") {
		t.Errorf("CTE condition lost: %q", got)
	}
	if !strings.Contains(got, ") AND (tenant_id = 7)") {
		t.Errorf("predicate not ANDed inside CTE: %q", got)
	}
	if !strings.HasSuffix(got, "SELECT count(*) FROM recent") {
		t.Errorf("outer query altered: %q", got)
	}
}

func TestInject_AmbiguousCTEs(t *testing.T) {
	sql := "WITH a AS (SELECT * FROM orders), b AS (SELECT * FROM orders) SELECT * FROM a JOIN b ON a.id = b.id"
	_, err := Inject(sql, "tenant_id = 7", []string{"orders"})
	if !errors.Is(err, ErrInjectionPoint) {
		t.Errorf("two protected CTE bodies should fail closed, got %v", err)
	}
}

func TestInject_NoProtectedReference(t *testing.T) {
	sql := "WITH x AS (SELECT 1 AS n) SELECT * FROM x"
	_, err := Inject(sql, "tenant_id = 7", []string{"orders"})
	if !errors.Is(err, ErrInjectionPoint) {
		t.Errorf("expected ErrInjectionPoint, got %v", err)
	}
}

func TestInject_FromlessSelect(t *testing.T) {
	_, err := Inject("SELECT 1", "tenant_id = 7", []string{"orders"})
	if !errors.Is(err, ErrInjectionPoint) {
		t.Errorf("expected ErrInjectionPoint for FROM-less select, got %v", err)
	}
}

func TestInject_KeywordInLiteralNotAWhere(t *testing.T) {
	// The word WHERE inside a literal must not be taken as the clause.
	sql := "SELECT * FROM notes WHERE body = 'WHERE is this'"
	got, err := Inject(sql, "tenant_id = 7", []string{"notes"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "('WHERE is this')") && !strings.Contains(got, "(body = 'WHERE is this') AND (tenant_id = 7)") {
		t.Errorf("unexpected rewrite: %q", got)
	}
}

func TestInject_TrailingSemicolonStripped(t *testing.T) {
	got, err := Inject("SELECT * FROM orders;", "tenant_id = 7", []string{"orders"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, ";") {
		t.Errorf("semicolon survived: %q", got)
	}
	if !strings.HasSuffix(got, "WHERE (tenant_id = 7)") {
		t.Errorf("predicate not appended: %q", got)
	}
}

func TestInject_SchemaQualifiedTable(t *testing.T) {
	got, err := Inject("SELECT * FROM public.orders", "tenant_id = 7", []string{"orders"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(got, "WHERE (tenant_id = 7)") {
		t.Errorf("predicate not appended: %q", got)
	}
}

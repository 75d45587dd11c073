package storage

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"HustleCollector/internal/domain"
)

func TestSelectCasesBuildsFilteredPage(t *testing.T) {
	t.Parallel()

	q := domain.CaseQuery{
		Filter: domain.CaseFilter{
			Search:     "50%_off",
			SourceType: domain.SourceForum,
			Status:     domain.StatusPublished,
		},
		SortBy:    domain.SortUpvotes,
		Ascending: true,
		Limit:     10,
		Offset:    20,
	}.Normalize()

	query, args, err := selectCases(q).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	for _, want := range []string{
		"FROM cases WHERE",
		"(title ILIKE $1 OR description ILIKE $2 OR category ILIKE $3 OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $4))",
		"source_type = $5",
		"published = $6",
		"ORDER BY upvotes ASC, id DESC LIMIT 10 OFFSET 20",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q does not contain %q", query, want)
		}
	}

	pattern := `%50\%\_off%`
	want := []any{pattern, pattern, pattern, pattern, "forum", true}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectCasesDefaults(t *testing.T) {
	t.Parallel()

	query, args, err := selectCases(domain.CaseQuery{}.Normalize()).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if strings.Contains(query, "WHERE") {
		t.Fatalf("empty filter should not constrain: %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0") {
		t.Fatalf("unexpected default ordering: %q", query)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestCountCasesStatusFilters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status domain.ModerationStatus
		want   string
	}{
		{domain.StatusPending, "SELECT COUNT(*) FROM cases WHERE admin_approved IS NULL"},
		{domain.StatusApproved, "SELECT COUNT(*) FROM cases WHERE admin_approved = $1"},
		{domain.StatusRejected, "SELECT COUNT(*) FROM cases WHERE admin_approved = $1"},
		{domain.StatusAny, "SELECT COUNT(*) FROM cases"},
	}

	for _, tc := range cases {
		query, _, err := countCases(domain.CaseFilter{Status: tc.status}).ToSql()
		if err != nil {
			t.Fatalf("ToSql(%q): %v", tc.status, err)
		}
		if query != tc.want {
			t.Fatalf("status %q: got %q want %q", tc.status, query, tc.want)
		}
	}
}

func TestModerateCasesUpdatesBothFlags(t *testing.T) {
	t.Parallel()

	query, args, err := moderateCases([]int64{1, 2, 99}, true).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if query != "UPDATE cases SET published = $1, admin_approved = $2 WHERE id = ANY($3)" {
		t.Fatalf("unexpected update: %q", query)
	}
	if len(args) != 3 || args[0] != true || args[1] != true {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestInsertCaseReturnsIdentity(t *testing.T) {
	t.Parallel()

	c := domain.Case{
		CaseContent: domain.CaseContent{Title: "Dog walking", Description: "Walking dogs."},
		SourceURL:   "https://www.reddit.com/r/x/comments/1/",
		SourceType:  domain.SourceForum,
	}
	query, args, err := insertCase(c).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO cases (") || !strings.HasSuffix(query, "RETURNING id, created_at") {
		t.Fatalf("unexpected insert: %q", query)
	}
	if len(args) != 29 {
		t.Fatalf("expected 29 args, got %d", len(args))
	}
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	if got := escapeLike(`a%b_c\d`); got != `a\%b\_c\\d` {
		t.Fatalf("unexpected escape: %q", got)
	}
}

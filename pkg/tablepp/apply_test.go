package tablepp

import (
	"context"
	"testing"

	"github.com/Zhukowych/tablepp/internal/testutil"
)

const crmSchema = `
tables:
  - name: Companies
    columns:
      - {name: title, type: TEXT}
    records:
      - {title: Acme}
      - {title: Globex}
  - name: Contacts
    columns:
      - {name: name, type: TEXT, settings: {max_length: 16}}
      - {name: company, type: RELATION, target: Companies}
    records:
      - {name: Ada, company: 1}
`

// ===========================================================================
// Schema files
// ===========================================================================

func TestApplySchema_SeedsCreatedTables(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	doc := testutil.MustValue(ParseSchema([]byte(crmSchema)))(t)

	report := testutil.MustValue(c.ApplySchema(ctx, admin, doc, ApplyOptions{}))(t)
	testutil.AssertEqual(t, len(report.Created), 2)
	testutil.AssertEqual(t, report.Seeded, 3)
	testutil.AssertTrue(t, len(report.Sync.Applied) > 0, "physical tables should be created")

	page := testutil.MustValue(c.ListRecords(ctx, admin, "Contacts", Query{}))(t)
	testutil.AssertEqual(t, page.Total, 1)

	again := testutil.MustValue(c.ApplySchema(ctx, admin, doc, ApplyOptions{}))(t)
	testutil.AssertFalse(t, again.Changed(), "second apply should change nothing")
	testutil.AssertEqual(t, again.Seeded, 0)
	testutil.AssertEqual(t, len(again.Sync.Applied), 0)

	page = testutil.MustValue(c.ListRecords(ctx, admin, "Companies", Query{}))(t)
	testutil.AssertEqual(t, page.Total, 2)
}

func TestApplySchema_BadSeedKeepsSchema(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	doc := testutil.MustValue(ParseSchema([]byte(`
tables:
  - name: Notes
    columns:
      - {name: title, type: TEXT, settings: {max_length: 4}}
    records:
      - {title: toolong}
`)))(t)

	report, err := c.ApplySchema(ctx, admin, doc, ApplyOptions{})
	testutil.AssertError(t, err, CodeValidation)
	testutil.AssertEqual(t, report.Seeded, 0)

	notes := testutil.MustValue(c.Table(ctx, "Notes"))(t)
	testutil.AssertTableExists(t, c.DB(), notes.Slug)
}

func TestApplySchema_PruneDropsRules(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	s := newCRM(t, c)

	_, err := c.Grant(ctx, Rule{SubjectKind: SubjectUser, SubjectID: 2, Target: ColumnTarget(s.age.ID), Operation: Write, Decision: Reject})
	testutil.AssertNoError(t, err)

	doc := testutil.MustValue(ParseSchema([]byte(`
tables:
  - name: Contacts
    columns:
      - {name: name, type: TEXT}
      - {name: company, type: RELATION, target: Companies}
`)))(t)
	report := testutil.MustValue(c.ApplySchema(ctx, admin, doc, ApplyOptions{Prune: true}))(t)
	testutil.AssertEqual(t, len(report.RemovedColumns), 1)
	testutil.AssertColumnNotExists(t, c.DB(), s.contacts.Slug, s.age.Slug)

	rules := testutil.MustValue(c.Rules(ctx, ColumnTarget(s.age.ID)))(t)
	testutil.AssertEqual(t, len(rules), 0)
}

func TestExportSchema(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	newCRM(t, c)

	doc := testutil.MustValue(c.ExportSchema(ctx))(t)
	testutil.AssertEqual(t, len(doc.Tables), 2)

	data := testutil.MustValue(MarshalSchema(doc))(t)
	reparsed := testutil.MustValue(ParseSchema(data))(t)
	report := testutil.MustValue(c.ApplySchema(ctx, admin, reparsed, ApplyOptions{Prune: true}))(t)
	testutil.AssertFalse(t, report.Changed(), "re-applying an export should change nothing")
}

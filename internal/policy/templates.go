package policy

import (
	"strings"
	"unicode"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
)

// DefaultAssigner is the assigner recorded on generated rules.
const DefaultAssigner = "system:policy"

// RuleTemplate is one row of a template entry.
type RuleTemplate struct {
	Type        model.RuleType
	Action      string
	Assignee    string
	Constraints []model.Constraint
}

// TemplateEntry maps activities to rules. An entry matches when the activity
// type is listed in Types, or when a word of the activity name starts with
// one of Keywords. OutcomeRole is the assignee of the outcome permission
// granted to activities that follow a decision gateway.
type TemplateEntry struct {
	Name        string
	Types       []model.ActivityType
	Keywords    []string
	OutcomeRole string
	Rules       []RuleTemplate
}

func within(d string) []model.Constraint {
	return []model.Constraint{{Type: "temporal", Operator: model.OpLteq, Value: d}}
}

// DefaultTemplates is the built-in rule table. Entries are tried in order and
// the first match wins; the last entry matches everything.
var DefaultTemplates = []TemplateEntry{
	{
		Name:        "subprocess",
		Types:       []model.ActivityType{model.ActivitySubprocess},
		OutcomeRole: "role:process-owner",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:process-owner"},
			{Type: model.RulePermission, Action: "delegate", Assignee: "role:process-owner"},
			{Type: model.RuleObligation, Action: "report", Assignee: "role:process-owner", Constraints: within("72h")},
		},
	},
	{
		Name:        "approval",
		Keywords:    []string{"approv", "review", "authoriz", "sign"},
		OutcomeRole: "role:manager",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:manager"},
			{Type: model.RulePermission, Action: "execute", Assignee: "role:supervisor"},
			{Type: model.RuleProhibition, Action: "execute", Assignee: "role:clerk"},
			{Type: model.RuleObligation, Action: "log", Assignee: "role:manager", Constraints: within("24h")},
			{Type: model.RuleObligation, Action: "notify", Assignee: "role:requester", Constraints: within("24h")},
		},
	},
	{
		Name:        "rejection",
		Keywords:    []string{"reject", "declin", "deny", "denial", "cancel"},
		OutcomeRole: "role:manager",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:manager"},
			{Type: model.RuleProhibition, Action: "execute", Assignee: "role:clerk"},
			{Type: model.RuleObligation, Action: "notify", Assignee: "role:requester", Constraints: within("24h")},
			{Type: model.RuleObligation, Action: "log", Assignee: "system:audit"},
		},
	},
	{
		Name:        "payment",
		Keywords:    []string{"pay", "invoice", "refund", "bill", "transfer"},
		OutcomeRole: "role:financial-officer",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:financial-officer"},
			{Type: model.RuleProhibition, Action: "execute", Assignee: "role:clerk"},
			{Type: model.RuleProhibition, Action: "execute", Assignee: "role:manager"},
			{Type: model.RuleObligation, Action: "record", Assignee: "role:financial-officer", Constraints: within("1h")},
		},
	},
	{
		Name:        "verification",
		Keywords:    []string{"verif", "check", "inspect", "validat", "audit", "test"},
		OutcomeRole: "role:quality-controller",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:quality-controller"},
			{Type: model.RulePermission, Action: "execute", Assignee: "role:supervisor"},
			{Type: model.RuleProhibition, Action: "execute", Assignee: "role:clerk"},
			{Type: model.RuleObligation, Action: "report", Assignee: "role:quality-controller", Constraints: within("48h")},
		},
	},
	{
		Name:        "notification",
		Keywords:    []string{"notif", "send", "inform", "email", "mail", "publish"},
		OutcomeRole: "role:clerk",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:clerk"},
			{Type: model.RuleObligation, Action: "log", Assignee: "system:audit"},
		},
	},
	{
		Name:        "data",
		Keywords:    []string{"record", "store", "archiv", "register", "updat", "enter"},
		OutcomeRole: "role:clerk",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:clerk"},
			{Type: model.RulePermission, Action: "read", Assignee: "role:auditor"},
			{Type: model.RuleProhibition, Action: "delete", Assignee: "role:clerk"},
			{Type: model.RuleObligation, Action: "retain", Assignee: "system:records", Constraints: []model.Constraint{
				{Type: "retention", Operator: model.OpGteq, Value: "8760h"},
			}},
		},
	},
	{
		Name:        "default",
		OutcomeRole: "role:clerk",
		Rules: []RuleTemplate{
			{Type: model.RulePermission, Action: "execute", Assignee: "role:clerk"},
			{Type: model.RulePermission, Action: "execute", Assignee: "role:manager"},
			{Type: model.RuleObligation, Action: "log", Assignee: "role:clerk", Constraints: within("24h")},
		},
	},
}

// words splits an activity name into lower-case alphanumeric words.
func words(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesStems reports whether any word starts with any stem.
func matchesStems(ws, stems []string) bool {
	for _, w := range ws {
		for _, s := range stems {
			if strings.HasPrefix(w, s) {
				return true
			}
		}
	}
	return false
}

// Match returns the first entry of table that applies to the activity. An
// entry with neither Types nor Keywords matches everything.
func Match(table []TemplateEntry, a model.Activity) (TemplateEntry, bool) {
	ws := words(a.Name)
	for _, e := range table {
		if len(e.Types) == 0 && len(e.Keywords) == 0 {
			return e, true
		}
		for _, t := range e.Types {
			if t == a.Type {
				return e, true
			}
		}
		if matchesStems(ws, e.Keywords) {
			return e, true
		}
	}
	return TemplateEntry{}, false
}

// Lookup returns the entry with the given name.
func Lookup(table []TemplateEntry, name string) (TemplateEntry, bool) {
	for _, e := range table {
		if e.Name == name {
			return e, true
		}
	}
	return TemplateEntry{}, false
}

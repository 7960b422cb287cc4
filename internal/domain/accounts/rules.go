package accounts

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Rule is the fallback used when no account carries a role's sub_type tag.
// An account matches when its type is allowed and either a keyword occurs
// in its name or the CEL expression evaluates to true.
type Rule struct {
	Role       Role     `mapstructure:"role" json:"role"`
	Types      []Type   `mapstructure:"types" json:"types"`
	Keywords   []string `mapstructure:"keywords" json:"keywords"`
	Expression string   `mapstructure:"expression" json:"expression,omitempty"`
}

// DefaultRules covers the roles the posting engine asks for, with names in
// English, Arabic, Spanish and French.
func DefaultRules() []Rule {
	return []Rule{
		{Role: RoleAccountsReceivable, Types: []Type{TypeAsset},
			Keywords: []string{"receivable", "debtors", "ذمم مدينة", "المدينون", "cuentas por cobrar", "clients"}},
		{Role: RoleAccountsPayable, Types: []Type{TypeLiability},
			Keywords: []string{"payable", "creditors", "ذمم دائنة", "الدائنون", "cuentas por pagar", "fournisseurs"}},
		{Role: RoleSalesRevenue, Types: []Type{TypeIncome},
			Keywords: []string{"sales", "revenue", "المبيعات", "إيرادات", "ventas", "ventes"}},
		{Role: RoleTaxPayable, Types: []Type{TypeLiability},
			Keywords: []string{"tax payable", "vat payable", "output tax", "ضريبة مستحقة", "impuesto por pagar", "tva collectée"}},
		{Role: RoleTaxReceivable, Types: []Type{TypeAsset},
			Keywords: []string{"tax receivable", "input tax", "vat receivable", "ضريبة مدخلات", "impuesto por cobrar", "tva déductible"}},
		{Role: RoleInventory, Types: []Type{TypeAsset},
			Keywords: []string{"inventory", "stock", "merchandise", "المخزون", "بضاعة", "inventario", "marchandises"}},
		{Role: RoleCOGS, Types: []Type{TypeExpense},
			Keywords: []string{"cost of goods", "cogs", "cost of sales", "تكلفة البضاعة", "تكلفة المبيعات", "costo de ventas", "coût des ventes"}},
		{Role: RoleInventoryWriteOff, Types: []Type{TypeExpense},
			Keywords: []string{"write-off", "write off", "shrinkage", "inventory loss", "شطب", "pérdida de inventario", "perte sur stock"}},
		{Role: RolePurchaseExpense, Types: []Type{TypeExpense},
			Keywords: []string{"purchases", "expense", "المشتريات", "مصروفات", "compras", "achats"}},
		{Role: RoleRoundingDifference, Types: []Type{TypeExpense, TypeIncome},
			Keywords: []string{"rounding", "فروقات تقريب", "redondeo", "arrondi"}},
	}
}

// compiledRule is a Rule with its CEL program ready to run.
type compiledRule struct {
	Rule
	keywords []string
	program  cel.Program
}

// RuleSet is an immutable, compiled set of fallback rules keyed by role.
type RuleSet struct {
	rules map[Role]compiledRule
}

// newCELEnv declares the variables a rule expression can read.
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("code", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("sub_type", cel.StringType),
	)
}

// CompileRules validates rules and compiles their expressions.
func CompileRules(rules []Rule) (*RuleSet, error) {
	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	set := &RuleSet{rules: make(map[Role]compiledRule, len(rules))}
	for _, r := range rules {
		if r.Role == "" {
			return nil, fmt.Errorf("account rule without role")
		}
		if _, dup := set.rules[r.Role]; dup {
			return nil, fmt.Errorf("duplicate account rule for role %s", r.Role)
		}
		if len(r.Keywords) == 0 && r.Expression == "" {
			return nil, fmt.Errorf("account rule %s has neither keywords nor expression", r.Role)
		}

		cr := compiledRule{Rule: r}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, strings.ToLower(strings.TrimSpace(kw)))
		}

		if r.Expression != "" {
			ast, iss := env.Compile(r.Expression)
			if iss != nil && iss.Err() != nil {
				return nil, fmt.Errorf("compile rule %s: %w", r.Role, iss.Err())
			}
			if !ast.OutputType().IsExactType(cel.BoolType) {
				return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.Role, ast.OutputType())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("program rule %s: %w", r.Role, err)
			}
			cr.program = prg
		}
		set.rules[r.Role] = cr
	}
	return set, nil
}

// MustDefaultRuleSet compiles DefaultRules; they are static, so failure is a bug.
func MustDefaultRuleSet() *RuleSet {
	set, err := CompileRules(DefaultRules())
	if err != nil {
		panic(err)
	}
	return set
}

// match reports whether acc satisfies the rule of role and which clause matched.
func (s *RuleSet) match(role Role, acc *Account) (bool, string, error) {
	r, ok := s.rules[role]
	if !ok {
		return false, "", nil
	}
	if len(r.Types) > 0 && !containsType(r.Types, acc.Type) {
		return false, "", nil
	}

	name := strings.ToLower(acc.Name)
	for _, kw := range r.keywords {
		if kw != "" && strings.Contains(name, kw) {
			return true, "keyword:" + kw, nil
		}
	}

	if r.program != nil {
		out, _, err := r.program.Eval(map[string]any{
			"code":     acc.Code,
			"name":     acc.Name,
			"type":     string(acc.Type),
			"sub_type": acc.SubType,
		})
		if err != nil {
			return false, "", fmt.Errorf("evaluate rule %s: %w", role, err)
		}
		if b, ok := out.Value().(bool); ok && b {
			return true, "expression", nil
		}
	}
	return false, "", nil
}

func containsType(types []Type, t Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

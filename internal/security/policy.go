package security

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// policySchemaJSON describes the optional policy document an operator may
// supply to extend the command whitelist/blacklist tables of §4.8
// without recompiling. Grounded on the teacher's jsonschema/v5-based
// Validator (core/types/validation.go), scaled down to one fixed schema
// instead of a per-call schema cache, since XMD only ever validates one
// document shape.
const policySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "safe_commands": {"type": "array", "items": {"type": "string"}},
    "network_commands": {"type": "array", "items": {"type": "string"}},
    "max_input_len": {"type": "integer", "minimum": 1},
    "allowed_import_base": {"type": "string"}
  },
  "additionalProperties": false
}`

var policySchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("policy.json", strings.NewReader(policySchemaJSON)); err != nil {
		panic(fmt.Sprintf("security: invalid embedded policy schema: %v", err))
	}
	s, err := compiler.Compile("policy.json")
	if err != nil {
		panic(fmt.Sprintf("security: compile embedded policy schema: %v", err))
	}
	return s
}()

// Policy extends the built-in command tables. A nil *Policy leaves the
// default tables of §4.8 untouched.
type Policy struct {
	SafeCommands      []string `json:"safe_commands,omitempty"`
	NetworkCommands   []string `json:"network_commands,omitempty"`
	MaxInputLen       int      `json:"max_input_len,omitempty"`
	AllowedImportBase string   `json:"allowed_import_base,omitempty"`
}

// ParsePolicy validates raw against the policy schema and decodes it.
func ParsePolicy(raw []byte) (*Policy, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("security: policy document is not valid JSON: %w", err)
	}
	if err := policySchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("security: policy document rejected: %w", err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("security: decode policy document: %w", err)
	}
	return &p, nil
}

// Engine bundles a Policy with a Sink so command validation and audit
// logging share one configured unit, instead of every caller wiring
// both through by hand.
type Engine struct {
	policy *Policy
	sink   Sink
	extraSafe    map[string]bool
	extraNetwork map[string]bool
}

// NewEngine builds an Engine. A nil policy uses only the built-in §4.8
// tables; a nil sink discards audit records.
func NewEngine(policy *Policy, sink Sink) *Engine {
	e := &Engine{policy: policy, sink: sink}
	if policy != nil {
		if len(policy.SafeCommands) > 0 {
			e.extraSafe = make(map[string]bool, len(policy.SafeCommands))
			for _, c := range policy.SafeCommands {
				e.extraSafe[strings.ToLower(c)] = true
			}
		}
		if len(policy.NetworkCommands) > 0 {
			e.extraNetwork = make(map[string]bool, len(policy.NetworkCommands))
			for _, c := range policy.NetworkCommands {
				e.extraNetwork[strings.ToLower(c)] = true
			}
		}
	}
	return e
}

// MaxInputLen reports the configured input length ceiling, defaulting to
// 8192 when no policy overrides it.
func (e *Engine) MaxInputLen() int {
	if e != nil && e.policy != nil && e.policy.MaxInputLen > 0 {
		return e.policy.MaxInputLen
	}
	return 8192
}

// ValidateCommand applies the policy's extra whitelist/blacklist entries
// on top of the built-in tables from §4.8, then audits the outcome.
func (e *Engine) ValidateCommand(cmd, sourceSite string) Result {
	res := ValidateCommand(cmd)
	if e != nil {
		fields := strings.Fields(cmd)
		if len(fields) > 0 {
			first := strings.ToLower(fields[0])
			if res == PermissionDenied && e.extraSafe[first] {
				res = Ok
			}
			if res == Ok && e.extraNetwork[first] {
				res = Network
			}
		}
	}
	e.audit(EventCommandExecution, cmd, sourceSite, res)
	return res
}

// ValidateInput applies MaxInputLen and audits the outcome.
func (e *Engine) ValidateInput(s, sourceSite string) Result {
	res := ValidateInput(s, e.MaxInputLen())
	e.audit(EventInputValidation, s, sourceSite, res)
	return res
}

// ValidatePath audits a path validation performed against allowedBase.
func (e *Engine) ValidatePath(path, allowedBase, sourceSite string) Result {
	res := ValidatePath(path, allowedBase)
	e.audit(EventFileAccess, path, sourceSite, res)
	return res
}

func (e *Engine) audit(eventType EventType, message, sourceSite string, result Result) {
	var sink Sink
	if e != nil {
		sink = e.sink
	}
	_ = Audit(sink, eventType, message, sourceSite, result)
}

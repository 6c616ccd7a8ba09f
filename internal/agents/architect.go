// internal/agents/architect.go
package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/llmutil"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultCategory = "custom"

// Architect implements refinement.Designer by asking the LLM for a project
// design.
type Architect struct {
	logger       *zap.Logger
	llmClient    schemas.LLMClient
	adminAddress string
}

// NewArchitect initializes the design agent.
func NewArchitect(logger *zap.Logger, llmClient schemas.LLMClient, adminAddress string) *Architect {
	return &Architect{
		logger:       logger.Named("architect"),
		llmClient:    llmClient,
		adminAddress: adminAddress,
	}
}

// architectResponse mirrors the JSON the model is asked for. Several fields
// are accepted either as a list or as a name->definition object.
type architectResponse struct {
	ProjectName            string   `json:"project_name"`
	ProjectType            string   `json:"project_type"`
	Description            string   `json:"description"`
	Features               flexList `json:"features"`
	TechnicalRequirements  flexList `json:"technical_requirements"`
	DataStructures         flexList `json:"data_structures"`
	Transitions            flexList `json:"transitions"`
	SecurityConsiderations flexList `json:"security_considerations"`
	AdminFeatures          flexList `json:"admin_features"`
	RequiresAdmin          bool     `json:"requires_admin"`
}

// Design implements refinement.Designer.
func (a *Architect) Design(ctx context.Context, query refinement.Query) (refinement.Design, error) {
	if strings.TrimSpace(query.Text) == "" {
		return refinement.Design{}, &refinement.DesignError{Err: errors.New("query text is empty")}
	}

	req := schemas.GenerationRequest{
		SystemPrompt: architectSystemPrompt(a.adminAddress),
		UserPrompt:   architectUserPrompt(query),
		Tier:         schemas.TierPowerful,
		Phase:        "design",
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.3,
		},
	}

	response, err := a.llmClient.Generate(ctx, req)
	if err != nil {
		return refinement.Design{}, &refinement.DesignError{Err: fmt.Errorf("LLM generation failed: %w", err)}
	}

	parsed, err := llmutil.ParseJSONResponse[architectResponse](response)
	if err != nil {
		a.logger.Error("Failed to parse design response.", zap.Error(err), zap.String("raw_response", response))
		return refinement.Design{}, &refinement.DesignError{Err: err}
	}

	design := parsed.toDesign(query)
	if err := validateDesign(design); err != nil {
		return refinement.Design{}, &refinement.DesignError{Err: err}
	}

	a.logger.Info("Project design complete.",
		zap.String("project", design.ProjectName),
		zap.String("category", design.Category),
		zap.Int("features", len(design.Features)))
	return design, nil
}

func (r *architectResponse) toDesign(q refinement.Query) refinement.Design {
	category := strings.ToLower(strings.TrimSpace(r.ProjectType))
	if category == "" {
		category = strings.ToLower(strings.TrimSpace(q.Category))
	}
	if category == "" {
		category = defaultCategory
	}
	return refinement.Design{
		ProjectName:           SanitizeProjectName(r.ProjectName),
		Category:              category,
		Description:           strings.TrimSpace(r.Description),
		Features:              r.Features.compact(),
		TechnicalRequirements: r.TechnicalRequirements.compact(),
		DataStructures:        r.DataStructures.compact(),
		Transitions:           r.Transitions.compact(),
		SecurityNotes:         r.SecurityConsiderations.compact(),
		AdminFeatures:         r.AdminFeatures.compact(),
		RequiresAdmin:         r.RequiresAdmin || len(r.AdminFeatures.compact()) > 0,
	}
}

func validateDesign(d refinement.Design) error {
	if d.ProjectName == "" {
		return errors.New("design has no usable project name")
	}
	if len(d.Features) == 0 {
		return fmt.Errorf("design for %q lists no features", d.ProjectName)
	}
	return nil
}

var (
	nonIdentChars    = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatUnderscore = regexp.MustCompile(`_{2,}`)
)

// SanitizeProjectName turns a model-supplied name into a lowercase Leo
// program identifier that is also safe as a directory name. It returns ""
// when nothing usable remains.
func SanitizeProjectName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, ".aleo")
	name = nonIdentChars.ReplaceAllString(name, "_")
	name = repeatUnderscore.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return ""
	}
	if name[0] < 'a' || name[0] > 'z' {
		name = "project_" + name
	}
	return name
}

// flexList accepts a JSON list of strings, an object (rendered as sorted
// "key: value" entries) or a single string.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*f = nil
		return nil
	case strings.HasPrefix(trimmed, "["):
		var items []interface{}
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(flexList, 0, len(items))
		for _, item := range items {
			out = append(out, stringify(item))
		}
		*f = out
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var items map[string]interface{}
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		keys := make([]string, 0, len(items))
		for k := range items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(flexList, 0, len(keys))
		for _, k := range keys {
			out = append(out, fmt.Sprintf("%s: %s", k, stringify(items[k])))
		}
		*f = out
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("expected a list, object or string: %w", err)
		}
		*f = flexList{s}
		return nil
	}
}

func (f flexList) compact() []string {
	var out []string
	for _, s := range f {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

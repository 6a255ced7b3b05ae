package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/lvfit/errs"
)

var validate = validator.New()

// Settings is the full set of session options.
type Settings struct {
	Epsilon          float64 `yaml:"epsilon" validate:"gt=0"`
	DefaultSigma     string  `yaml:"default_sigma" validate:"oneof=sqrt one"`
	PseudoRandomSeed int64   `yaml:"pseudo_random_seed" validate:"gte=0"`
	NumericFormat    string  `yaml:"numeric_format" validate:"startswith=%"`

	HeightCorrection float64 `yaml:"height_correction" validate:"gt=0"`
	WidthCorrection  float64 `yaml:"width_correction" validate:"gt=0"`
	GuessUsesWeights bool    `yaml:"guess_uses_weights"`

	FittingMethod      string  `yaml:"fitting_method" validate:"required"`
	MaxWSSREvaluations int     `yaml:"max_wssr_evaluations" validate:"gte=0"`
	MaxFittingTime     float64 `yaml:"max_fitting_time" validate:"gte=0"`
	DomainPercent      float64 `yaml:"domain_percent" validate:"gte=0"`
	BoxConstraints     bool    `yaml:"box_constraints"`
	ParallelResiduals  bool    `yaml:"parallel_residuals"`
	NumAreaSteps       int     `yaml:"numarea_steps" validate:"gte=2"`

	LMLambdaStart      float64 `yaml:"lm_lambda_start" validate:"gt=0"`
	LMLambdaUpFactor   float64 `yaml:"lm_lambda_up_factor" validate:"gt=1"`
	LMLambdaDownFactor float64 `yaml:"lm_lambda_down_factor" validate:"gt=1"`
	LMMaxLambda        float64 `yaml:"lm_max_lambda" validate:"gtfield=LMLambdaStart"`
	LMStopRelChange    float64 `yaml:"lm_stop_rel_change" validate:"gte=0"`
	FtolRel            float64 `yaml:"ftol_rel" validate:"gte=0"`
	XtolRel            float64 `yaml:"xtol_rel" validate:"gte=0"`

	NMConvergence  float64 `yaml:"nm_convergence" validate:"gt=0"`
	NMMoveAll      bool    `yaml:"nm_move_all"`
	NMDistribution string  `yaml:"nm_distribution" validate:"oneof=bound uniform gauss lorentz"`
	NMMoveFactor   float64 `yaml:"nm_move_factor" validate:"gt=0"`

	GAPopulation           int     `yaml:"ga_population" validate:"gte=4"`
	GAMutationProbability  float64 `yaml:"ga_mutation_probability" validate:"gte=0,lte=1"`
	GACrossoverProbability float64 `yaml:"ga_crossover_probability" validate:"gte=0,lte=1"`
	GAMutationStrength     float64 `yaml:"ga_mutation_strength" validate:"gt=0"`
	GAElitism              int     `yaml:"ga_elitism" validate:"gte=0,ltfield=GAPopulation"`
	GAMaxGenerations       int     `yaml:"ga_max_generations" validate:"gte=0"`
}

// Default returns the settings a new session starts with.
func Default() *Settings {
	return &Settings{
		Epsilon:       1e-12,
		DefaultSigma:  "sqrt",
		NumericFormat: "%g",

		HeightCorrection: 1,
		WidthCorrection:  1,
		GuessUsesWeights: true,

		FittingMethod:      "levenberg_marquardt",
		MaxWSSREvaluations: 1000,
		DomainPercent:      30,
		BoxConstraints:     true,
		ParallelResiduals:  true,
		NumAreaSteps:       100,

		LMLambdaStart:      0.001,
		LMLambdaUpFactor:   10,
		LMLambdaDownFactor: 10,
		LMMaxLambda:        1e15,
		LMStopRelChange:    1e-7,

		NMConvergence:  1e-4,
		NMDistribution: "bound",
		NMMoveFactor:   1,

		GAPopulation:           100,
		GAMutationProbability:  0.1,
		GACrossoverProbability: 0.3,
		GAMutationStrength:     0.1,
		GAElitism:              2,
	}
}

// Load reads settings from a YAML file on top of Default.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads YAML settings from r on top of Default. Unknown keys are
// rejected; an empty document yields the defaults.
func Decode(r io.Reader) (*Settings, error) {
	s := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %v: %w", err, errs.ErrEvaluation)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks every field constraint.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fieldError(fe)
			}
			return fmt.Errorf("config: %s: %w", strings.Join(msgs, "; "), errs.ErrEvaluation)
		}
		return fmt.Errorf("config: %v: %w", err, errs.ErrEvaluation)
	}

	return nil
}

func fieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param())
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	}

	return fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag())
}

// Clone returns a copy.
func (s *Settings) Clone() *Settings {
	c := *s

	return &c
}

// Keys returns every setting name, sorted.
func (s *Settings) Keys() []string {
	n, err := s.node()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	sort.Strings(keys)

	return keys
}

// Get returns the value of key as text, in the form Set accepts.
func (s *Settings) Get(key string) (string, error) {
	n, err := s.node()
	if err != nil {
		return "", err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1].Value, nil
		}
	}

	return "", fmt.Errorf("config: unknown option %q: %w", key, errs.ErrEvaluation)
}

// Set parses value for key and commits it when the result validates.
// Booleans accept true/false and 1/0; a single-quoted value is unquoted.
func (s *Settings) Set(key, value string) error {
	return s.SetAll([][2]string{{key, value}})
}

// SetAll applies key/value pairs in order and validates once at the end,
// so options constrained by each other can change together. Nothing is
// committed on error.
func (s *Settings) SetAll(pairs [][2]string) error {
	next := s.Clone()
	for _, kv := range pairs {
		if err := next.decodeKey(kv[0], kv[1]); err != nil {
			return err
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = *next

	return nil
}

// decodeKey parses value into the field named key without validating.
func (s *Settings) decodeKey(key, value string) error {
	if _, err := s.Get(key); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
		value = value[1 : len(value)-1]
	}
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: key},
		{Kind: yaml.ScalarNode, Value: value},
	}}
	if err := doc.Decode(s); err != nil {
		if b, ok := boolAlias(value); ok {
			doc.Content[1].Value = b
			err = doc.Decode(s)
		}
		if err != nil {
			return fmt.Errorf("config: %s = %s: %v: %w", key, value, err, errs.ErrEvaluation)
		}
	}

	return nil
}

func boolAlias(v string) (string, bool) {
	switch v {
	case "1":
		return "true", true
	case "0":
		return "false", true
	}

	return "", false
}

func (s *Settings) node() (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(s); err != nil {
		return nil, fmt.Errorf("config: %v: %w", err, errs.ErrEvaluation)
	}

	return &n, nil
}

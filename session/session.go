package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/dataset"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/expr"
	"github.com/katalvlaran/lvfit/fit"
	"github.com/katalvlaran/lvfit/model"
	"github.com/katalvlaran/lvfit/vars"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger; the default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSettings starts the session from a copy of cfg instead of
// config.Default().
func WithSettings(cfg *config.Settings) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg.Clone()
		}
	}
}

// WithMetrics reports fit runs to m.
func WithMetrics(m *fit.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithOutput sets where "print" and "fit" write their reports; the default
// discards them.
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		if w != nil {
			s.out = w
		}
	}
}

// StatementError is a failed statement.
type StatementError struct {
	Statement string
	Err       error
}

// Error implements error.
func (e *StatementError) Error() string {
	return fmt.Sprintf("%s in %q: %v", errs.Kind(e.Err), e.Statement, e.Err)
}

// Unwrap returns the underlying error.
func (e *StatementError) Unwrap() error { return e.Err }

// Session is one fitting workspace: templates, variables, function
// instances, datasets with their models, settings and the fit engine. It
// is safe for concurrent use; statements and queries are serialized.
type Session struct {
	mu      sync.Mutex
	log     *zap.Logger
	metrics *fit.Metrics
	out     io.Writer
	cfg     *config.Settings

	lib    *model.Library
	g      *vars.Graph
	reg    *model.Registry
	data   *dataset.Store
	models []*model.Model // one per dataset, same index
	fitter *fit.Engine
}

// New returns an empty session holding one empty dataset (@0).
func New(opts ...Option) *Session {
	s := &Session{log: zap.NewNop(), out: io.Discard, cfg: config.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.init()

	return s
}

// init (re)creates everything but the settings.
func (s *Session) init() {
	s.lib = model.NewLibrary()
	s.g = vars.New(vars.WithLogger(s.log.Named("vars")))
	s.reg = model.NewRegistry(s.lib, s.g, model.WithLogger(s.log.Named("model")))
	s.data = dataset.NewStore()
	s.models = []*model.Model{s.reg.NewModel()}
	s.fitter = fit.New(s.g, s.cfg, fit.WithLogger(s.log.Named("fit")), fit.WithMetrics(s.metrics))
}

// Execute runs text with a background context.
func (s *Session) Execute(text string) error {
	return s.ExecuteContext(context.Background(), text)
}

// ExecuteContext runs the statements of text in order and stops at the
// first failure, returned as a *StatementError. Canceling ctx aborts a
// running fit and skips the remaining statements.
func (s *Session) ExecuteContext(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmts, err := split(text)
	if err != nil {
		return s.fail(text, err)
	}
	for _, st := range stmts {
		if err := ctx.Err(); err != nil {
			return s.fail(st, fmt.Errorf("session: %v: %w", err, errs.ErrAborted))
		}
		if err := s.exec(ctx, st); err != nil {
			return s.fail(st, err)
		}
	}

	return nil
}

func (s *Session) fail(stmt string, err error) error {
	s.log.Warn("statement failed",
		zap.String("statement", stmt), zap.String("kind", errs.Kind(err)), zap.Error(err))

	return &StatementError{Statement: stmt, Err: err}
}

// split cuts text into statements at newlines and top-level ';', dropping
// comments and blank statements.
func split(text string) ([]string, error) {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		toks, err := expr.Tokenize(line)
		if err != nil {
			return nil, err
		}
		start := 0
		for _, t := range toks {
			if t.Kind != expr.TokEOF && !(t.Kind == expr.TokOp && t.Text == ";") {
				continue
			}
			if st := strings.TrimSpace(stripComment(line[start:t.Pos])); st != "" {
				out = append(out, st)
			}
			start = t.Pos + 1
		}
	}

	return out, nil
}

// stripComment drops a trailing '#' comment outside quotes.
func stripComment(s string) string {
	var quote byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return s[:i]
		}
	}

	return s
}

// exec dispatches one statement.
func (s *Session) exec(ctx context.Context, stmt string) error {
	p, err := expr.NewParser(stmt)
	if err != nil {
		return err
	}
	targets, err := s.prefix(p)
	if err != nil {
		return err
	}
	if err = s.dispatch(ctx, p, stmt, targets); err != nil {
		return err
	}
	if err = end(p); err != nil {
		return err
	}
	s.log.Debug("statement", zap.String("text", stmt))

	return nil
}

func (s *Session) dispatch(ctx context.Context, p *expr.Parser, stmt string, targets []int) error {
	t := p.Peek()
	switch t.Kind {
	case expr.TokDollar:
		return s.assignVariable(p)
	case expr.TokPercent:
		return s.assignFunction(p, targets)
	case expr.TokAt:
		return s.datasetStatement(p)
	case expr.TokIdent:
	default:
		return p.Unexpected("expected a statement")
	}

	switch t.Text {
	case "F":
		p.Next()
		return s.assignModel(p, targets)
	case "X", "Y", "S", "A", "M":
		return s.transform(p, targets)
	case "title":
		return s.setTitle(p, targets)
	case "guess":
		return s.guessStatement(p, targets)
	case "define":
		p.Next()
		_, err := s.lib.Define(stmt[p.Peek().Pos:])
		for !p.AtEnd() {
			p.Next()
		}
		return err
	case "undefine":
		p.Next()
		n := p.Next()
		if n.Kind != expr.TokIdent {
			return &expr.SyntaxError{Pos: n.Pos, Token: n.String(), Msg: "expected a template name"}
		}
		if err := end(p); err != nil {
			return err
		}
		return s.reg.Undefine(n.Text)
	case "delete":
		return s.deleteStatement(p, targets)
	case "use":
		p.Next()
		ds, err := s.datasetIndex(p.Next())
		if err != nil {
			return err
		}
		if err = end(p); err != nil {
			return err
		}
		return s.data.Use(ds)
	case "set":
		return s.setStatement(p, stmt)
	case "reset":
		p.Next()
		if err := end(p); err != nil {
			return err
		}
		s.init()
		s.log.Info("session reset")
		return nil
	case "fit":
		return s.fitStatement(ctx, p, targets)
	case "print":
		return s.printStatement(p, targets)
	}

	return p.Unexpected("expected a statement")
}

// prefix consumes a leading "@n @m:" or "@*:" and returns the selected
// datasets; without a prefix it returns nil and leaves the cursor alone.
func (s *Session) prefix(p *expr.Parser) ([]int, error) {
	mark := p.Mark()
	var refs []expr.Token
	for p.Peek().Kind == expr.TokAt {
		refs = append(refs, p.Next())
	}
	if len(refs) == 0 || !p.Accept(":") {
		p.Reset(mark)
		return nil, nil
	}
	var out []int
	for _, t := range refs {
		if t.Text == "*" {
			for i := 0; i < s.data.Len(); i++ {
				out = append(out, i)
			}
			continue
		}
		i, err := s.datasetIndex(t)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}

	return out, nil
}

// end fails unless the whole statement has been read. Handlers call it
// after parsing and before changing anything, so a statement with trailing
// garbage has no effect.
func end(p *expr.Parser) error {
	if !p.AtEnd() {
		return p.Unexpected("expected end of statement")
	}

	return nil
}

// datasetIndex resolves an "@n" token to an existing dataset.
func (s *Session) datasetIndex(t expr.Token) (int, error) {
	if t.Kind != expr.TokAt || t.Text == "*" || t.Text == "+" {
		return 0, &expr.SyntaxError{Pos: t.Pos, Token: t.String(), Msg: "expected a dataset @n"}
	}
	var i int
	if _, err := fmt.Sscan(t.Text, &i); err != nil {
		return 0, &expr.SyntaxError{Pos: t.Pos, Token: t.String(), Msg: "expected a dataset @n"}
	}
	if _, err := s.data.Get(i); err != nil {
		return 0, err
	}

	return i, nil
}

// orDefault returns targets, or the default dataset when there are none.
func (s *Session) orDefault(targets []int) []int {
	if len(targets) == 0 {
		return []int{s.data.Default()}
	}

	return targets
}

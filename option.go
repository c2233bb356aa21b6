package reviewloader

import (
	"regexp"

	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader/bias"
	"go.nownabe.dev/reviewloader/validate"
)

// Option configures Pipeline.
type Option interface {
	apply(*Pipeline) error
}

type optionFunc func(*Pipeline) error

func (f optionFunc) apply(p *Pipeline) error {
	return f(p)
}

// WithPrettyLogging configures Pipeline to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(p *Pipeline) error {
		p.prettyLogging = true
		return nil
	})
}

// WithLogLevel configures log level. Available levels are "trace", "debug",
// "info", "warn", "error", "fatal", "panic".
func WithLogLevel(level string) Option {
	return optionFunc(func(p *Pipeline) error {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("failed to parse log level %q: %w", level, err)
		}
		p.logLevel = lvl
		return nil
	})
}

// WithLogger replaces the base logger. Level and pretty printing options
// are ignored when a logger is given.
func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(p *Pipeline) error {
		p.logger = &l
		return nil
	})
}

// WithInspector sets the bias inspector run before validation. A nil
// inspector disables the inspection.
func WithInspector(i bias.Inspector) Option {
	return optionFunc(func(p *Pipeline) error {
		p.inspector = i
		return nil
	})
}

// WithSchema validates datasets against s instead of a schema inferred from
// the dataset itself.
func WithSchema(s *validate.Schema) Option {
	return optionFunc(func(p *Pipeline) error {
		p.schema = s
		return nil
	})
}

// WithNotifier sets the notifier called at the end of each run.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(p *Pipeline) error {
		if n == nil {
			return xerrors.New("notifier must not be nil")
		}
		p.notifier = n
		return nil
	})
}

// WithParser overrides the parser chosen from source.format.
func WithParser(parser Parser) Option {
	return optionFunc(func(p *Pipeline) error {
		p.parser = parser
		return nil
	})
}

// WithEncoding decodes source objects from enc.
func WithEncoding(enc encoding.Encoding) Option {
	return optionFunc(func(p *Pipeline) error {
		p.encoding = enc
		return nil
	})
}

// WithBackoff overrides the retry backoff built from the retry settings.
func WithBackoff(bo gax.Backoff) Option {
	return optionFunc(func(p *Pipeline) error {
		p.backoff = bo
		return nil
	})
}

// WithPattern makes Handle ignore objects whose name does not match re.
func WithPattern(re *regexp.Regexp) Option {
	return optionFunc(func(p *Pipeline) error {
		p.pattern = re
		return nil
	})
}

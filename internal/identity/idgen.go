package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/your-org/faceid/internal/observability"
)

const (
	dateLayout  = "060102"
	seqDigits   = 4
	maxSequence = 9999
)

var ErrSequenceExhausted = errors.New("daily identifier sequence exhausted")

// IDSource is the slice of the identity store the generator needs.
type IDSource interface {
	MaxIdentifier(ctx context.Context, prefix string) (string, error)
	IdentifierTaken(ctx context.Context, identifier string) (bool, error)
}

// Generator issues identifiers of the form PREFIX+YYMMDD+NNNN where NNNN
// restarts at 0001 every day.
type Generator struct {
	prefix      string
	src         IDSource
	breaker     *gobreaker.CircuitBreaker[string]
	maxAttempts int
	now         func() time.Time
}

type GeneratorOption func(*Generator)

func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

func WithMaxAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func NewGenerator(prefix string, src IDSource, opts ...GeneratorOption) *Generator {
	g := &Generator{
		prefix:      prefix,
		src:         src,
		maxAttempts: 10,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "identifier-lookup",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Next returns an identifier unused by any active or retired identity.
// When the store cannot report today's highest sequence, the sequence is
// derived from the clock instead and still checked for existence.
func (g *Generator) Next(ctx context.Context) (string, error) {
	now := g.now()
	base := g.prefix + now.Format(dateLayout)

	seq, err := g.nextSequence(ctx, base)
	fallback := err != nil
	if fallback {
		if errors.Is(err, ErrSequenceExhausted) {
			return "", err
		}
		slog.Warn("identifier lookup failed, using clock-derived sequence", "prefix", base, "error", err)
		observability.IDFallbacks.Inc()
		seq = clockSequence(now)
	}

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		id := fmt.Sprintf("%s%0*d", base, seqDigits, seq)
		taken, err := g.src.IdentifierTaken(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check identifier %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}

		slog.Debug("identifier taken, retrying", "identifier", id, "attempt", attempt+1)
		next := seq + 1
		if !fallback {
			if s, err := g.nextSequence(ctx, base); err == nil && s > next {
				next = s
			} else if errors.Is(err, ErrSequenceExhausted) {
				return "", err
			}
		}
		if next > maxSequence {
			if !fallback {
				return "", fmt.Errorf("%w for %s", ErrSequenceExhausted, base)
			}
			next = 1
		}
		seq = next
	}
	return "", fmt.Errorf("no free identifier for %s after %d attempts", base, g.maxAttempts)
}

func (g *Generator) nextSequence(ctx context.Context, base string) (int, error) {
	max, err := g.breaker.Execute(func() (string, error) {
		return g.src.MaxIdentifier(ctx, base)
	})
	if err != nil {
		return 0, fmt.Errorf("lookup max identifier: %w", err)
	}
	if max == "" {
		return 1, nil
	}

	suffix := strings.TrimPrefix(max, base)
	n, err := strconv.Atoi(suffix)
	if err != nil || len(suffix) != seqDigits {
		return 0, fmt.Errorf("malformed stored identifier %q", max)
	}
	if n >= maxSequence {
		return 0, fmt.Errorf("%w for %s", ErrSequenceExhausted, base)
	}
	return n + 1, nil
}

// clockSequence maps the second of the day onto 1..9999.
func clockSequence(t time.Time) int {
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return secs%maxSequence + 1
}

// Validate checks the identifier format and returns a reason when it is invalid.
func (g *Generator) Validate(id string) (bool, string) {
	want := len(g.prefix) + len(dateLayout) + seqDigits
	if len(id) != want {
		return false, fmt.Sprintf("identifier must be %d characters, got %d", want, len(id))
	}
	if !strings.HasPrefix(id, g.prefix) {
		return false, fmt.Sprintf("identifier must start with %q", g.prefix)
	}
	rest := id[len(g.prefix):]
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false, fmt.Sprintf("identifier must end with %d digits", len(rest))
		}
	}
	if _, err := time.Parse(dateLayout, rest[:len(dateLayout)]); err != nil {
		return false, fmt.Sprintf("identifier date %s is not a valid calendar date", rest[:len(dateLayout)])
	}
	return true, ""
}

// Exists reports whether the identifier is held by an active or retired identity.
func (g *Generator) Exists(ctx context.Context, id string) (bool, error) {
	taken, err := g.src.IdentifierTaken(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check identifier %s: %w", id, err)
	}
	return taken, nil
}

// internal/service/qrcampaign/codegen.go
package qrcampaign

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	domain "qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/metrics"

	"go.uber.org/zap"
)

const (
	// Crockford base32, no I L O U.
	codeAlphabet       = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	codeRandomLength   = 16
	DefaultMaxAttempts = 5
)

var ErrGenerationExhausted = errors.New("code generation exhausted")

// CodeGenerator mints opaque codes of the form QR<tool base36>-<16 random chars>.
// The random part carries 80 bits from the entropy source and nothing else.
type CodeGenerator struct {
	entropy     io.Reader
	maxAttempts int
	logger      *zap.Logger
}

func NewCodeGenerator(maxAttempts int, logger *zap.Logger) *CodeGenerator {
	return NewCodeGeneratorWithEntropy(rand.Reader, maxAttempts, logger)
}

func NewCodeGeneratorWithEntropy(entropy io.Reader, maxAttempts int, logger *zap.Logger) *CodeGenerator {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &CodeGenerator{
		entropy:     entropy,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (g *CodeGenerator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns a code no other row uses yet.
func (g *CodeGenerator) Generate(ctx context.Context, checker domain.CodeChecker, toolID int64) (string, error) {
	prefix := "QR" + strings.ToUpper(strconv.FormatInt(toolID, 36)) + "-"

	for i := 0; i < g.maxAttempts; i++ {
		random, err := g.randomPart()
		if err != nil {
			g.logger.Error("entropy source failed",
				zap.Int64("tool_id", toolID),
				zap.Error(err),
			)
			return "", g.exhausted(toolID, i+1, err)
		}

		code := prefix + random
		exists, err := checker.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code: %w", err)
		}
		if !exists {
			return code, nil
		}

		g.logger.Warn("code collision, regenerating",
			zap.Int64("tool_id", toolID),
			zap.Int("attempt", i+1),
		)
	}

	return "", g.exhausted(toolID, g.maxAttempts, nil)
}

func (g *CodeGenerator) randomPart() (string, error) {
	// 10 bytes = 80 bits = 16 base32 symbols
	buf := make([]byte, 10)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(codeRandomLength)
	var acc uint64
	bits := 0
	for _, b := range buf {
		acc = acc<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(codeAlphabet[(acc>>uint(bits))&0x1f])
		}
	}
	return sb.String(), nil
}

func (g *CodeGenerator) exhausted(toolID int64, attempts int, cause error) error {
	metrics.GenerationExhausted.Inc()
	g.logger.Error("code generation exhausted",
		zap.Int64("tool_id", toolID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	if cause != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrGenerationExhausted, attempts, cause)
	}
	return fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, attempts)
}

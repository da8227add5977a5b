// Package security implements the advisory safety gate applied to shell
// commands before autonomous execution.
package security

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/pkg/filesystem"
	"github.com/doeshing/aiosd/internal/ports"
)

// DangerPattern describes one blocklist rule. Matching is plain substring,
// not regex or whole-word.
type DangerPattern struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// RulesFile is the YAML schema root for an external rules file.
type RulesFile struct {
	Rules struct {
		DangerPatterns []DangerPattern `yaml:"danger_patterns"`
	} `yaml:"rules"`
}

// Gate classifies candidate commands as safe or blocked and applies the
// confirmation-required policy.
type Gate struct {
	patterns           []DangerPattern
	bypass             bool
	confirmationPolicy bool
	logger             ports.Logger
}

// Options configures a Gate.
type Options struct {
	RulesFile            string
	Bypass               bool
	ConfirmationRequired bool
	Logger               ports.Logger
}

// NewGate loads blocklist rules from disk, falling back to the built-in
// defaults when the file is missing or empty.
func NewGate(opts Options) (*Gate, error) {
	patterns, err := loadRules(opts.RulesFile)
	if err != nil {
		return nil, err
	}
	return &Gate{
		patterns:           patterns,
		bypass:             opts.Bypass,
		confirmationPolicy: opts.ConfirmationRequired,
		logger:             opts.Logger,
	}, nil
}

// Evaluate implements ports.SafetyGate. A blocked verdict short-circuits
// execution; in confirmation-required mode even safe commands come back as
// confirm_required and execution is deferred to an explicit execute request.
func (g *Gate) Evaluate(command string) domain.SafetyAssessment {
	if !g.bypass {
		for _, p := range g.patterns {
			if strings.Contains(command, p.Pattern) {
				if g.logger != nil {
					g.logger.Warn("blocked dangerous command pattern", map[string]interface{}{
						"pattern": p.Pattern,
						"reason":  p.Reason,
					})
				}
				return domain.SafetyAssessment{
					Verdict:        domain.VerdictBlocked,
					Command:        command,
					MatchedPattern: p.Pattern,
					Reason:         p.Reason,
				}
			}
		}
	}
	if g.confirmationPolicy {
		return domain.SafetyAssessment{
			Verdict: domain.VerdictConfirmRequired,
			Command: command,
		}
	}
	return domain.SafetyAssessment{Verdict: domain.VerdictSafe, Command: command}
}

// ConfirmationRequired reports the active confirmation policy.
func (g *Gate) ConfirmationRequired() bool {
	return g.confirmationPolicy
}

// Bypassed reports whether the blocklist is disabled.
func (g *Gate) Bypassed() bool {
	return g.bypass
}

func loadRules(path string) ([]DangerPattern, error) {
	if path == "" {
		return DefaultPatterns(), nil
	}
	data, err := os.ReadFile(filesystem.ExpandPath(path))
	if err != nil {
		return DefaultPatterns(), nil
	}
	var rules RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	if len(rules.Rules.DangerPatterns) == 0 {
		return DefaultPatterns(), nil
	}
	return rules.Rules.DangerPatterns, nil
}

// DefaultPatterns is the built-in destructive-command blocklist.
func DefaultPatterns() []DangerPattern {
	return []DangerPattern{
		{Pattern: "rm -rf /", Reason: "recursive delete from root"},
		{Pattern: "rm -rf /*", Reason: "recursive delete of everything"},
		{Pattern: "dd if=", Reason: "raw disk write"},
		{Pattern: "mkfs", Reason: "filesystem format"},
		{Pattern: "fdisk", Reason: "partition table manipulation"},
		{Pattern: "parted", Reason: "partition table manipulation"},
		{Pattern: "shutdown", Reason: "system shutdown"},
		{Pattern: "reboot", Reason: "system reboot"},
		{Pattern: "halt", Reason: "system halt"},
		{Pattern: "poweroff", Reason: "system poweroff"},
		{Pattern: "kill -9 1", Reason: "killing init"},
		{Pattern: "chmod 777 /", Reason: "world-writable root"},
		{Pattern: "chown root:root /", Reason: "ownership change on root"},
		{Pattern: "> /dev/sda", Reason: "write to block device"},
		{Pattern: "> /dev/sdb", Reason: "write to block device"},
		{Pattern: "wget http://", Reason: "unreviewed direct download"},
		{Pattern: "curl http://", Reason: "unreviewed direct download"},
		{Pattern: ":(){ :|:& };:", Reason: "fork bomb"},
		{Pattern: "sudo rm -rf", Reason: "privileged recursive delete"},
		{Pattern: "sudo dd", Reason: "privileged raw disk write"},
		{Pattern: "sudo mkfs", Reason: "privileged filesystem format"},
		{Pattern: "sudo fdisk", Reason: "privileged partition manipulation"},
		{Pattern: "sudo parted", Reason: "privileged partition manipulation"},
	}
}

var _ ports.SafetyGate = (*Gate)(nil)

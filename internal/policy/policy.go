// Package policy decides whether a filesystem path is indexable. The rules
// run in a fixed order and the first match wins: watch-root containment,
// extension allow/block lists, ignore patterns, size limits, binary sniff.
package policy

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/ignore"
)

// Verdict is the outcome kind of a classification.
type Verdict int

const (
	// VerdictIndex means the path should be indexed.
	VerdictIndex Verdict = iota
	// VerdictSkip means the path is not indexable; Decision.Reason says why.
	VerdictSkip
	// VerdictTooLarge means the file exceeds the size limit.
	VerdictTooLarge
	// VerdictBinary means the content sniff found binary data.
	VerdictBinary
	// VerdictIgnored means an ignore pattern matched.
	VerdictIgnored
)

// String returns a human-readable verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictIndex:
		return "INDEX"
	case VerdictSkip:
		return "SKIP"
	case VerdictTooLarge:
		return "TOO_LARGE"
	case VerdictBinary:
		return "BINARY"
	case VerdictIgnored:
		return "IGNORED"
	default:
		return "UNKNOWN"
	}
}

// Skip reasons.
const (
	ReasonOutOfRoot  = "out_of_root"
	ReasonBlocked    = "blocked"
	ReasonExtension  = "extension"
	ReasonIOError    = "io_error"
	ReasonNotRegular = "not_regular"
)

// Decision is the result of classifying a path.
type Decision struct {
	Verdict Verdict
	// Reason qualifies SKIP verdicts (out_of_root, blocked, extension, io_error).
	Reason string
	// Root is the watch root containing the path (set when resolved).
	Root string
	// RelPath is the slash-separated path relative to Root.
	RelPath string
	// Language is the detected language (set for INDEX).
	Language string
	// SizeBytes is the file size (set when the file was statted).
	SizeBytes int64
}

// Index reports whether the decision allows indexing.
func (d Decision) Index() bool { return d.Verdict == VerdictIndex }

// binarySniffLen is how many leading bytes the binary check inspects.
const binarySniffLen = 8 * 1024

// Policy classifies paths against a config and compiled ignore matchers.
// Matchers are immutable after construction; rebuild the Policy when an
// ignore file changes.
type Policy struct {
	cfg      *config.Config
	roots    []string // absolute, cleaned
	matchers map[string]*ignore.Matcher
	allowed  map[string]bool
	blocked  map[string]bool
	logger   *slog.Logger
}

// New builds a Policy, loading ignore files under every watch root.
func New(cfg *config.Config, logger *slog.Logger) (*Policy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Policy{
		cfg:      cfg,
		matchers: make(map[string]*ignore.Matcher, len(cfg.WatchRoots)),
		allowed:  toSet(cfg.AllowedExtensions),
		blocked:  toSet(cfg.BlockedExtensions),
		logger:   logger,
	}
	for _, root := range cfg.WatchRoots {
		root = filepath.Clean(root)
		p.roots = append(p.roots, root)
		m, err := ignore.LoadTree(root, cfg.IgnoreFiles, cfg.IgnorePatterns)
		if err != nil {
			return nil, err
		}
		p.matchers[root] = m
	}
	return p, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(strings.TrimPrefix(it, "."))] = true
	}
	return set
}

// Classify runs the rule chain against an absolute path. I/O failures
// produce SKIP(io_error) rather than an error: classification outcomes are
// ordinary values.
func (p *Policy) Classify(absPath string) Decision {
	root, rel, ok := p.resolve(absPath)
	if !ok {
		return Decision{Verdict: VerdictSkip, Reason: ReasonOutOfRoot}
	}
	d := Decision{Root: root, RelPath: rel}

	// Rule 2: extensions. Blocked wins over allowed.
	ext := Extension(absPath)
	if p.blocked[ext] {
		d.Verdict, d.Reason = VerdictSkip, ReasonBlocked
		return d
	}
	if len(p.allowed) > 0 && !p.allowed[ext] {
		d.Verdict, d.Reason = VerdictSkip, ReasonExtension
		return d
	}

	// Rule 3: ignore patterns.
	if m := p.matchers[root]; m != nil && m.Match(rel, false) {
		d.Verdict = VerdictIgnored
		return d
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		d.Verdict, d.Reason = VerdictSkip, ReasonIOError
		return d
	}
	if info.Mode()&os.ModeSymlink != 0 {
		info, err = os.Stat(absPath)
		if err != nil {
			d.Verdict, d.Reason = VerdictSkip, ReasonIOError
			return d
		}
	}
	if !info.Mode().IsRegular() {
		d.Verdict, d.Reason = VerdictSkip, ReasonNotRegular
		return d
	}
	d.SizeBytes = info.Size()

	// Rule 4: size.
	if info.Size() > p.cfg.MaxFileSizeBytes && !p.sizeExempt(rel) {
		d.Verdict = VerdictTooLarge
		return d
	}
	if p.cfg.WarnFileSizeBytes > 0 && info.Size() > p.cfg.WarnFileSizeBytes {
		p.logger.Warn("large file indexed",
			slog.String("path", rel),
			slog.Int64("size_bytes", info.Size()))
	}

	// Rule 5: binary sniff.
	if isBinary(absPath, p.cfg.BinaryThreshold) {
		d.Verdict = VerdictBinary
		return d
	}

	d.Verdict = VerdictIndex
	d.Language = DetectLanguage(absPath)
	return d
}

// Resolve maps an absolute path to (root, relPath) without running the rule
// chain. Used by deletion handling, where the file no longer exists.
func (p *Policy) Resolve(absPath string) (root, rel string, ok bool) {
	return p.resolve(absPath)
}

// resolve finds the watch root containing absPath, following symlinks up to
// MaxSymlinkDepth. A path whose resolution lands outside every root is
// rejected.
func (p *Policy) resolve(absPath string) (string, string, bool) {
	clean := filepath.Clean(absPath)

	// Symlinked paths must still resolve inside a root.
	resolved := clean
	for depth := 0; depth < maxInt(p.cfg.MaxSymlinkDepth, 1); depth++ {
		info, err := os.Lstat(resolved)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			break
		}
		if !p.cfg.FollowSymlinks {
			return "", "", false
		}
		target, err := os.Readlink(resolved)
		if err != nil {
			return "", "", false
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(resolved), target)
		}
		resolved = filepath.Clean(target)
	}

	for _, root := range p.roots {
		rel, err := filepath.Rel(root, clean)
		if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
			continue
		}
		// The resolved target must not escape the root either.
		if resolved != clean {
			if relResolved, err := filepath.Rel(root, resolved); err != nil || strings.HasPrefix(relResolved, "..") {
				if !p.insideAnyRoot(resolved) {
					return "", "", false
				}
			}
		}
		return root, filepath.ToSlash(rel), true
	}
	return "", "", false
}

func (p *Policy) insideAnyRoot(path string) bool {
	for _, root := range p.roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

func (p *Policy) sizeExempt(rel string) bool {
	for _, pattern := range p.cfg.SizeExceptions {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// isBinary sniffs the first 8 KiB: a NUL byte, or invalid UTF-8 sequences
// above threshold, classifies the file as binary.
func isBinary(path string, threshold float64) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if n <= 0 {
		return false
	}
	buf = buf[:n]

	invalid := 0
	for i := 0; i < len(buf); {
		if buf[i] == 0 {
			return true
		}
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 {
			// A rune truncated by the sniff boundary is not evidence.
			if i+utf8.UTFMax > len(buf) {
				break
			}
			invalid++
		}
		i += size
	}
	return float64(invalid)/float64(len(buf)) > threshold
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

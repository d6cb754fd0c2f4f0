// Package capability detects the optional page-rasterization toolchain
// (poppler-utils) once per process. The extraction pipeline branches on the
// cached result instead of re-probing PATH for every document.
package capability

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Report describes which optional tools are installed.
type Report struct {
	// RasterizationAvailable is true when pdftoppm can be executed.
	RasterizationAvailable bool

	// PdftoppmPath is the resolved binary path when available.
	PdftoppmPath string

	// PdfinfoPath is the resolved pdfinfo path; optional, used for diagnostics only.
	PdfinfoPath string

	// Reasons explains every missing capability.
	Reasons []string

	// InstallHints suggests platform-specific install commands for missing tools.
	InstallHints []string

	CheckedAt time.Time
}

// Probe checks for external tools on PATH. The zero value is not usable;
// construct with New.
type Probe struct {
	lookPath func(string) (string, error)

	once   sync.Once
	cached Report
}

// New builds a probe using the real PATH lookup.
func New() *Probe {
	return &Probe{lookPath: exec.LookPath}
}

// NewWithLookup builds a probe with an injected lookup (for tests).
func NewWithLookup(lookPath func(string) (string, error)) *Probe {
	return &Probe{lookPath: lookPath}
}

// Check returns the capability report, probing PATH on the first call and
// returning the cached result afterwards.
func (p *Probe) Check() Report {
	p.once.Do(func() {
		p.cached = p.probe()
	})
	return p.cached
}

// Recheck probes PATH again, bypassing the cache. Intended for the
// capabilities diagnostic command; request paths should use Check.
func (p *Probe) Recheck() Report {
	p.cached = p.probe()
	return p.cached
}

func (p *Probe) probe() Report {
	report := Report{CheckedAt: time.Now().UTC()}

	path, err := p.lookPath("pdftoppm")
	if err != nil {
		report.Reasons = append(report.Reasons, "pdftoppm not found in PATH; scanned PDFs cannot be rasterized")
		report.InstallHints = append(report.InstallHints, installHint())
	} else {
		report.RasterizationAvailable = true
		report.PdftoppmPath = path
	}

	if infoPath, err := p.lookPath("pdfinfo"); err == nil {
		report.PdfinfoPath = infoPath
	}

	return report
}

func installHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install poppler: brew install poppler"
	case "linux":
		return "Install poppler-utils: sudo apt install poppler-utils (Debian/Ubuntu) or sudo dnf install poppler-utils (Fedora)"
	case "windows":
		return "Install poppler: choco install poppler, or download from https://github.com/oschwartz10612/poppler-windows"
	default:
		return fmt.Sprintf("Install poppler-utils for %s and ensure pdftoppm is on PATH", runtime.GOOS)
	}
}

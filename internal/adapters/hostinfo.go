package adapters

import (
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"rootstrap/internal/ports"
)

// HostInfoAdapter probes the host for configuration defaults:
// architecture, distribution suite, a local apt cache, and the
// emulation binary needed for cross-architecture runs.
type HostInfoAdapter struct {
	// ProxyProbeURL overrides the apt-cacher-ng probe endpoint in
	// tests.
	ProxyProbeURL string
}

func NewHostInfoAdapter() HostInfoAdapter {
	return HostInfoAdapter{}
}

func (a HostInfoAdapter) Architecture() (string, error) {
	out, err := exec.Command("dpkg", "--print-architecture").Output()
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("failed to query host architecture").
			WithCause(err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (a HostInfoAdapter) Suite() (string, error) {
	out, err := exec.Command("lsb_release", "-cs").Output()
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("failed to query host suite").
			WithCause(err)
	}
	return strings.TrimSpace(string(out)), nil
}

// DetectAptProxy checks for a local apt-cacher-ng and returns its URL
// when one is answering, otherwise empty.
func (a HostInfoAdapter) DetectAptProxy() string {
	probe := a.ProxyProbeURL
	if probe == "" {
		probe = "http://localhost:3142/acng-report.html"
	}
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(probe)
	if err != nil {
		log.Info().Msg("no local apt cache detected")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	base := strings.TrimSuffix(probe, "/acng-report.html")
	log.Info().Str("proxy", base).Msg("local apt cache detected, will use")
	return base
}

// QemuBinary returns the user-mode emulation binary for the target
// architecture, or empty when the host can run target binaries
// natively.
func (a HostInfoAdapter) QemuBinary(hostArch string, targetArch string) string {
	if hostArch != "amd64" || targetArch == hostArch {
		return ""
	}
	switch targetArch {
	case "arm64":
		return "/usr/bin/qemu-aarch64-static"
	case "armhf":
		return "/usr/bin/qemu-arm-static"
	default:
		return ""
	}
}

var _ ports.HostInfoPort = HostInfoAdapter{}

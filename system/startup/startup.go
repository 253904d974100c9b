package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/env"
)

// WriteStartupScript writes a pinctrl script that parks every relay at its
// inactive level before the controller starts.
func WriteStartupScript() error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Pool relay configuration at boot", "")

	names := make([]string, 0, len(env.Cfg.Relays))
	for name := range env.Cfg.Relays {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pin := env.Cfg.Relays[name]
		lines = append(lines, fmt.Sprintf("# %s", name))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", pin.Pin, inactiveDrive(pin)))
		lines = append(lines, "")
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(env.Cfg.BootScriptFilePath, []byte(contents), 0755)
}

func inactiveDrive(pin config.RelayPin) string {
	if pin.ActiveHigh {
		return "dl"
	}
	return "dh"
}

func InstallStartupService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Park pool relay pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptFilePath)

	return os.WriteFile(env.Cfg.OSServicePath, []byte(unitContents), 0644)
}

func RunStartupScript() error {
	cmd := exec.Command("/bin/bash", env.Cfg.BootScriptFilePath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// InstallControllerService writes the main unit; it starts after the pin
// script and runs binary against the loaded config file.
func InstallControllerService(binary, user, workdir string) error {
	gpioUnitName := filepath.Base(env.Cfg.OSServicePath)

	unit := fmt.Sprintf(`[Unit]
Description=Pool solar controller
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s -config-file %s
Restart=on-failure
RestartSec=5s
KillSignal=SIGTERM

[Install]
WantedBy=multi-user.target
`, gpioUnitName, gpioUnitName, user, workdir, binary, env.Cfg.ConfigFile)

	return os.WriteFile(env.Cfg.MainServicePath, []byte(unit), 0644)
}

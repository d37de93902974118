package main

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/scott-cotton/cli"
)

// DoctorConfig wraps MainConfig with the Command handle Parse needs, the
// way every other xbase subcommand config does.
type DoctorConfig struct {
	*MainConfig
	Command *cli.Command
}

// DoctorCommand verifies the Xcode toolchain xbased and xbase-sourcekit
// depend on is actually present (SPEC_FULL.md §7, supplemented from
// original_source/src/xcode.rs's environment checks). It talks to the host
// directly rather than the daemon: these are environment facts, not daemon
// state.
func DoctorCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DoctorConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Command, "doctor").
		WithSynopsis("doctor").
		WithDescription("verify xcodebuild, xcrun simctl, and xcode-select are present").
		WithRun(func(cc *cli.Context, args []string) error {
			return doctorRun(cfg, cc, args)
		})
}

type doctorCheck struct {
	label string
	name  string
	args  []string
}

func doctorRun(cfg *DoctorConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Command.Parse(cc, args); err != nil {
		return err
	}

	checks := []doctorCheck{
		{label: "xcodebuild", name: "xcodebuild", args: []string{"-version"}},
		{label: "xcrun simctl", name: "xcrun", args: []string{"--find", "simctl"}},
		{label: "xcode-select", name: "xcode-select", args: []string{"-p"}},
	}

	var missing []string
	for _, c := range checks {
		out, err := exec.Command(c.name, c.args...).CombinedOutput()
		if err != nil {
			missing = append(missing, c.label)
			fmt.Fprintf(cc.Out, "%s: not found (%v)\n", c.label, err)
			continue
		}
		fmt.Fprintf(cc.Out, "%s: %s\n", c.label, firstLine(out))
	}
	if len(missing) > 0 {
		return fmt.Errorf("doctor: missing required tools: %s", strings.Join(missing, ", "))
	}
	return nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// DevicesConfig wraps MainConfig with the Command handle Parse needs.
type DevicesConfig struct {
	*MainConfig
	Command *cli.Command
}

// DevicesCommand lists available simulator destinations (SPEC_FULL.md §7,
// supplemented from original_source/daemon/src/run.rs), feeding the UDIDs
// that RunCommand's -device flag accepts.
func DevicesCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DevicesConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Command, "devices").
		WithSynopsis("devices").
		WithDescription("list available simulator destinations via xcrun simctl").
		WithRun(func(cc *cli.Context, args []string) error {
			return devicesRun(cfg, cc, args)
		})
}

// simctlDeviceList mirrors the subset of `xcrun simctl list devices --json`
// this command cares about: a runtime identifier mapped to its devices.
type simctlDeviceList struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

type simctlDevice struct {
	Name        string `json:"name"`
	UDID        string `json:"udid"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
}

func devicesRun(cfg *DevicesConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Command.Parse(cc, args); err != nil {
		return err
	}

	out, err := exec.Command("xcrun", "simctl", "list", "devices", "--json").Output()
	if err != nil {
		return fmt.Errorf("simctl list devices: %w", err)
	}
	var list simctlDeviceList
	if err := json.Unmarshal(out, &list); err != nil {
		return fmt.Errorf("parsing simctl output: %w", err)
	}

	runtimes := make([]string, 0, len(list.Devices))
	for runtime := range list.Devices {
		runtimes = append(runtimes, runtime)
	}
	sort.Strings(runtimes)

	for _, runtime := range runtimes {
		for _, d := range list.Devices[runtime] {
			if !d.IsAvailable {
				continue
			}
			fmt.Fprintf(cc.Out, "%s\t%s\t%s\t%s\n", d.UDID, d.Name, d.State, runtime)
		}
	}
	return nil
}

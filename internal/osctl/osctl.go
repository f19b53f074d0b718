// Package osctl runs the host commands behind service and account management.
package osctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/telemetry"
)

// Result describes one executed command. Command never contains secrets.
type Result struct {
	Command string
	Output  string
}

// UserSpec is the input for creating an OS account.
type UserSpec struct {
	Username      string
	FullName      string
	Shell         string
	HomeDirectory string
	CreateHome    bool
	Groups        []string
}

// UserChange lists the account fields to modify; nil means unchanged.
type UserChange struct {
	FullName *string
	Shell    *string
	Groups   []string
}

// Account is an OS account as reported by the passwd database.
type Account struct {
	Username      string
	UID           int
	GID           int
	FullName      string
	HomeDirectory string
	Shell         string
	Groups        []string
}

// Controller is the host operations surface used by the services.
type Controller interface {
	ServiceAction(ctx context.Context, name string, action models.ServiceAction) (*Result, error)
	ServiceStatus(ctx context.Context, name string) (*models.ServiceState, error)
	CreateUser(ctx context.Context, spec UserSpec) (*Result, error)
	ModifyUser(ctx context.Context, username string, change UserChange) (*Result, error)
	DeleteUser(ctx context.Context, username string, removeHome bool) (*Result, error)
	SetPassword(ctx context.Context, username, password string) (*Result, error)
	LockUser(ctx context.Context, username string) (*Result, error)
	UnlockUser(ctx context.Context, username string) (*Result, error)
	LookupUser(ctx context.Context, username string) (*Account, error)
}

// runFunc executes name with args, feeding stdin, and returns stdout.
type runFunc func(ctx context.Context, stdin string, name string, args ...string) (string, error)

// ExecController shells out to systemctl and the shadow-utils.
type ExecController struct {
	timeout time.Duration
	dryRun  bool
	logger  *slog.Logger
	metrics *telemetry.Metrics
	run     runFunc
}

func NewExecController(timeout time.Duration, dryRun bool, logger *slog.Logger, metrics *telemetry.Metrics) *ExecController {
	return &ExecController{
		timeout: timeout,
		dryRun:  dryRun,
		logger:  logger,
		metrics: metrics,
		run:     execRun,
	}
}

func execRun(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "command timed out"
		}
		return stdout.String(), errors.New(msg)
	}
	return stdout.String(), nil
}

// exec runs one command under the configured timeout. display is the
// command line as recorded in the audit trail.
func (c *ExecController) exec(ctx context.Context, display string, stdin string, name string, args ...string) (*Result, error) {
	res := &Result{Command: display}

	if c.dryRun {
		c.logger.InfoContext(ctx, "dry run, command not executed", slog.String("command", display))
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.run(ctx, stdin, name, args...)
	c.metrics.ObserveOSCommand(name, err, time.Since(start))

	res.Output = strings.TrimSpace(out)
	if err != nil {
		c.logger.WarnContext(ctx, "os command failed",
			slog.String("command", display),
			slog.String("error", err.Error()))
		return res, fmt.Errorf("%w: %s: %v", models.ErrOSCommandFailed, display, err)
	}
	return res, nil
}

func (c *ExecController) command(ctx context.Context, name string, args ...string) (*Result, error) {
	return c.exec(ctx, name+" "+strings.Join(args, " "), "", name, args...)
}

func (c *ExecController) ServiceAction(ctx context.Context, name string, action models.ServiceAction) (*Result, error) {
	return c.command(ctx, "systemctl", string(action), name)
}

func (c *ExecController) ServiceStatus(ctx context.Context, name string) (*models.ServiceState, error) {
	if c.dryRun {
		return &models.ServiceState{Status: models.ServiceStatusUnknown}, nil
	}

	res, err := c.command(ctx, "systemctl", "show", name, "--no-pager",
		"--property=ActiveState,UnitFileState,MainPID,MemoryCurrent,Description,LoadState")
	if err != nil {
		return nil, err
	}
	return parseShow(res.Output)
}

// parseShow reads `systemctl show` key=value output.
func parseShow(out string) (*models.ServiceState, error) {
	props := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			props[k] = v
		}
	}

	if props["LoadState"] == "not-found" {
		return nil, fmt.Errorf("%w: unit not found", models.ErrNotFound)
	}

	st := &models.ServiceState{
		Status:      models.ParseServiceStatus(props["ActiveState"]),
		IsEnabled:   props["UnitFileState"] == "enabled",
		Description: props["Description"],
	}
	st.IsActive = st.Status == models.ServiceStatusActive
	if st.Status == models.ServiceStatusInactive && props["UnitFileState"] == "disabled" {
		st.Status = models.ServiceStatusDisabled
	}

	if pid, err := strconv.Atoi(props["MainPID"]); err == nil && pid > 0 {
		st.MainPID = &pid
	}
	if mem, err := strconv.ParseInt(props["MemoryCurrent"], 10, 64); err == nil && mem >= 0 {
		st.MemoryBytes = &mem
	}
	return st, nil
}

func (c *ExecController) CreateUser(ctx context.Context, spec UserSpec) (*Result, error) {
	args := []string{"-s", spec.Shell, "-d", spec.HomeDirectory}
	if spec.CreateHome {
		args = append(args, "-m")
	} else {
		args = append(args, "-M")
	}
	if spec.FullName != "" {
		args = append(args, "-c", spec.FullName)
	}
	if len(spec.Groups) > 0 {
		args = append(args, "-G", strings.Join(spec.Groups, ","))
	}
	args = append(args, spec.Username)

	return c.command(ctx, "useradd", args...)
}

func (c *ExecController) ModifyUser(ctx context.Context, username string, change UserChange) (*Result, error) {
	var args []string
	if change.FullName != nil {
		args = append(args, "-c", *change.FullName)
	}
	if change.Shell != nil {
		args = append(args, "-s", *change.Shell)
	}
	if change.Groups != nil {
		args = append(args, "-G", strings.Join(change.Groups, ","))
	}
	if len(args) == 0 {
		return &Result{}, nil
	}
	return c.command(ctx, "usermod", append(args, username)...)
}

func (c *ExecController) DeleteUser(ctx context.Context, username string, removeHome bool) (*Result, error) {
	if removeHome {
		return c.command(ctx, "userdel", "-r", username)
	}
	return c.command(ctx, "userdel", username)
}

// SetPassword feeds chpasswd on stdin so the password never appears in argv
// or in the recorded command. chpasswd reads one "user:password" record per
// line, so input that could end or split the record is refused unexecuted.
func (c *ExecController) SetPassword(ctx context.Context, username, password string) (*Result, error) {
	if strings.ContainsAny(username, ":\n\r\x00") || strings.ContainsAny(password, "\n\r\x00") {
		return nil, fmt.Errorf("%w: chpasswd input contains a record separator", models.ErrBadRequest)
	}
	return c.exec(ctx, "chpasswd ("+username+")", username+":"+password+"\n", "chpasswd")
}

func (c *ExecController) LockUser(ctx context.Context, username string) (*Result, error) {
	return c.command(ctx, "usermod", "-L", username)
}

func (c *ExecController) UnlockUser(ctx context.Context, username string) (*Result, error) {
	return c.command(ctx, "usermod", "-U", username)
}

func (c *ExecController) LookupUser(ctx context.Context, username string) (*Account, error) {
	if c.dryRun {
		id := dryRunID(username)
		return &Account{Username: username, UID: id, GID: id, HomeDirectory: "/home/" + username, Shell: "/bin/bash"}, nil
	}

	res, err := c.command(ctx, "getent", "passwd", username)
	if err != nil {
		return nil, err
	}
	acct, err := parsePasswd(res.Output)
	if err != nil {
		return nil, err
	}

	groups, err := c.command(ctx, "id", "-nG", username)
	if err == nil {
		acct.Groups = strings.Fields(groups.Output)
	}
	return acct, nil
}

// parsePasswd reads one name:x:uid:gid:gecos:home:shell line.
func parsePasswd(line string) (*Account, error) {
	fields := strings.Split(strings.TrimSpace(line), ":")
	if len(fields) != 7 {
		return nil, fmt.Errorf("%w: unexpected passwd entry", models.ErrOSCommandFailed)
	}

	uid, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad uid %q", models.ErrOSCommandFailed, fields[2])
	}
	gid, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("%w: bad gid %q", models.ErrOSCommandFailed, fields[3])
	}

	fullName, _, _ := strings.Cut(fields[4], ",")
	return &Account{
		Username:      fields[0],
		UID:           uid,
		GID:           gid,
		FullName:      fullName,
		HomeDirectory: fields[5],
		Shell:         fields[6],
	}, nil
}

// dryRunID derives a stable, unique-enough id above the regular user range
// so dry-run rows satisfy the uid constraint.
func dryRunID(username string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return 100000 + int(h.Sum32()%900000)
}

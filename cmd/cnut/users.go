// ABOUTME: One-shot account administration commands run against the local database
// ABOUTME: Each command opens the store, acts on one uid and prints the outcome

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/config"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/logging"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/server"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/users"
)

// userCommand is a subcommand working on the user service.
type userCommand struct {
	positional int             // required positional arguments
	optional   int             // extra positional arguments allowed
	flags      map[string]bool // flag name -> takes a value
	run        func(ctx context.Context, svc *users.Service, a *parsedArgs) error
}

var userCommands = map[string]userCommand{
	"create-user": {positional: 1, flags: map[string]bool{"password": false, "email": true}, run: cmdCreateUser},
	"passwd":      {positional: 1, run: cmdPasswd},
	"reset-key":   {positional: 1, run: cmdResetKey},
	"rename":      {positional: 2, run: cmdRename},
	"op":          {positional: 1, run: cmdOp},
	"deop":        {positional: 1, run: cmdDeOp},
	"ban":         {positional: 1, flags: map[string]bool{"minutes": true, "days": true, "reason": true}, run: cmdBan},
	"unban":       {positional: 1, run: cmdUnban},
	"avatar":      {positional: 1, optional: 1, run: cmdAvatar},
	"info":        {positional: 1, run: cmdInfo},
	"list":        {run: cmdList},
	"cleanup":     {positional: 1, run: cmdCleanup},
	"remove-user": {positional: 1, run: cmdRemoveUser},
}

var (
	okMark  = color.New(color.FgGreen).Sprint("✓")
	warnTag = color.New(color.FgYellow)
)

func runUserCommand(ctx context.Context, cmd userCommand, args []string) error {
	a, err := parseArgs(args, cmd.flags)
	if err != nil {
		return err
	}
	if len(a.positional) < cmd.positional || len(a.positional) > cmd.positional+cmd.optional {
		return fmt.Errorf("expected %d argument(s), got %d", cmd.positional, len(a.positional))
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Commands log to stderr so stdout stays clean for their output.
	logCfg := cfg.Logging
	if logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	logger, closer := logging.Setup(logCfg, os.Stderr)
	defer closer.Close()

	svcs, err := server.OpenServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	return cmd.run(ctx, svcs.Users, a)
}

// readPassword reads a password without echo from a terminal, or a line from piped input.
func readPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Printf("%s: ", label)
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Printf("Confirm %s: ", strings.ToLower(label))
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func cmdCreateUser(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	uid := a.positional[0]
	var password, email *string
	if a.has("password") {
		pwd, err := readPassword("Password")
		if err != nil {
			return err
		}
		password = &pwd
	}
	if v, ok := a.values["email"]; ok {
		email = &v
	}

	key, err := svc.CreateUserData(ctx, uid, password, email)
	if err != nil {
		return err
	}
	fmt.Printf("%s created %s\n", okMark, uid)
	fmt.Printf("  key: %s\n", key)
	return nil
}

func cmdPasswd(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	pwd, err := readPassword("New password")
	if err != nil {
		return err
	}
	if err := svc.Credentials().UpdatePassword(ctx, a.positional[0], pwd); err != nil {
		return err
	}
	fmt.Printf("%s password updated for %s\n", okMark, a.positional[0])
	return nil
}

func cmdResetKey(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	key, err := svc.RotateKey(ctx, a.positional[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s new key for %s: %s\n", okMark, a.positional[0], key)
	return nil
}

func cmdRename(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	if err := svc.ChangeName(ctx, a.positional[0], a.positional[1]); err != nil {
		return err
	}
	fmt.Printf("%s %s is now shown as %s\n", okMark, a.positional[0], a.positional[1])
	return nil
}

func cmdOp(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	if err := svc.GiveOp(ctx, a.positional[0]); err != nil {
		return err
	}
	fmt.Printf("%s %s is an admin\n", okMark, a.positional[0])
	return nil
}

func cmdDeOp(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	if err := svc.DeOp(ctx, a.positional[0]); err != nil {
		return err
	}
	fmt.Printf("%s %s is no longer an admin\n", okMark, a.positional[0])
	return nil
}

func intFlag(a *parsedArgs, name string) (int, error) {
	v, ok := a.values[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("--%s must be a number", name)
	}
	return n, nil
}

func cmdBan(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	minutes, err := intFlag(a, "minutes")
	if err != nil {
		return err
	}
	days, err := intFlag(a, "days")
	if err != nil {
		return err
	}

	ban, err := svc.BanUser(ctx, a.positional[0], minutes, days, a.values["reason"])
	if err != nil {
		return err
	}
	summary := svc.Summarize(ban)
	fmt.Printf("%s banned %s\n", okMark, a.positional[0])
	fmt.Printf("  reason: %s\n  from:   %s\n  until:  %s\n", summary.Reason, summary.StartTime, summary.EndTime)
	return nil
}

func cmdUnban(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	cleared, err := svc.ClearBan(ctx, a.positional[0])
	if err != nil {
		return err
	}
	if !cleared {
		warnTag.Printf("%s was not banned\n", a.positional[0])
		return nil
	}
	fmt.Printf("%s unbanned %s\n", okMark, a.positional[0])
	return nil
}

func cmdAvatar(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	uid := a.positional[0]
	if len(a.positional) > 1 {
		f, err := os.Open(a.positional[1])
		if err != nil {
			return fmt.Errorf("opening image: %w", err)
		}
		defer f.Close()
		if err := svc.SaveGlobalAvatar(uid, f); err != nil {
			return err
		}
	}
	if err := svc.InsertAvatar(ctx, uid); err != nil {
		return err
	}
	fmt.Printf("%s avatar stored for %s\n", okMark, uid)
	return nil
}

func cmdInfo(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	info, err := svc.GetUserInfo(ctx, a.positional[0])
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("no user matches %q", a.positional[0])
	}

	fmt.Printf("uid:    %s\n", info.UID)
	fmt.Printf("key:    %s\n", info.Key)
	fmt.Printf("name:   %s\n", info.Name)
	fmt.Printf("admin:  %t\n", info.Admin)
	fmt.Printf("avatar: %t\n", info.Avatar)
	if info.Email != nil {
		fmt.Printf("email:  %s\n", *info.Email)
	}

	ban, err := svc.BanSummary(ctx, info.UID)
	if err != nil {
		return err
	}
	if ban != nil {
		warnTag.Printf("banned: %s (%s - %s)\n", ban.Reason, ban.StartTime, ban.EndTime)
	}
	return nil
}

func cmdList(ctx context.Context, svc *users.Service, _ *parsedArgs) error {
	list, err := svc.ListUsers(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tKEY\tREGISTERED")
	for _, u := range list {
		fmt.Fprintf(w, "%s\t%s\t%t\n", u.UID, u.Key, u.Registered)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d user(s)\n", len(list))
	return nil
}

func cmdCleanup(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	cleaned, err := svc.CheckCleanup(ctx, a.positional[0])
	if err != nil {
		return err
	}
	if !cleaned {
		fmt.Printf("nothing to clean for %s\n", a.positional[0])
		return nil
	}
	fmt.Printf("%s purged %s\n", okMark, a.positional[0])
	return nil
}

func cmdRemoveUser(ctx context.Context, svc *users.Service, a *parsedArgs) error {
	if err := svc.RemoveUser(ctx, a.positional[0]); err != nil {
		return err
	}
	fmt.Printf("%s removed %s\n", okMark, a.positional[0])
	return nil
}

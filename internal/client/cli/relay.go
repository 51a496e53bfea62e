package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

func (a *App) relay(ctx context.Context, args []string) error {
	fs := a.flagSet("relay")
	relayName := fs.String("r", "", "relay name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *relayName == "" {
		fs.Usage()
		return ErrUsage
	}

	token, err := GetSecret(a.out, "GitHub token: ")
	if err != nil {
		return err
	}

	raw, err := a.api.GetRelay(ctx, *relayName, token)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return fmt.Errorf("decode relay: %w", err)
	}
	fmt.Fprintln(a.out, pretty.String())
	return nil
}

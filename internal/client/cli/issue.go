package cli

import (
	"context"
	"fmt"
)

func (a *App) issue(ctx context.Context, args []string) error {
	fs := a.flagSet("issue")
	relayName := fs.String("r", "", "relay name")
	metaData := fs.String("m", "", "metadata stored with the key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *relayName == "" {
		fs.Usage()
		return ErrUsage
	}

	password, err := GetSecret(a.out, "Relay password (empty if none): ")
	if err != nil {
		return err
	}

	key, err := a.api.IssueKey(ctx, *relayName, password, *metaData)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "subject key:  %s\n", key.SubjectKey)
	fmt.Fprintf(a.out, "relay number: %d\n", key.RelayNumber)
	fmt.Fprintf(a.out, "upload token: %s\n", key.UploadToken)
	return nil
}

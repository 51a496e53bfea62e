package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/exius/internal/client/client"
)

const defaultEndpoint = "data"

func (a *App) upload(ctx context.Context, args []string) error {
	fs := a.flagSet("upload")
	relayName := fs.String("r", "", "relay name")
	subjectKey := fs.String("k", "", "subject key")
	token := fs.String("token", "", "upload token returned by issue")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := parseFileArgs(fs.Args())
	if len(files) == 0 || (*token == "" && *relayName == "") {
		fs.Usage()
		return ErrUsage
	}

	auth := client.UploadAuth{RelayName: *relayName, SubjectKey: *subjectKey, Token: *token}
	if auth.Token == "" && auth.SubjectKey == "" {
		key, err := GetSimpleText(a.reader, "Subject key", a.out)
		if err != nil {
			return err
		}
		auth.SubjectKey = key
	}

	res, err := a.api.Upload(ctx, auth, files)
	if err != nil {
		return err
	}

	for _, name := range res.Accepted {
		fmt.Fprintf(a.out, "accepted  %s\n", name)
	}
	names := make([]string, 0, len(res.FailedFiles))
	for name := range res.FailedFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.out, "rejected  %s: %s\n", name, res.FailedFiles[name])
	}
	if len(names) > 0 {
		return errRejected
	}
	return nil
}

// parseFileArgs reads "endpoint=path" or bare "path" arguments.
func parseFileArgs(args []string) []client.UploadFile {
	files := make([]client.UploadFile, 0, len(args))
	for _, arg := range args {
		endpoint, path, ok := strings.Cut(arg, "=")
		if !ok {
			endpoint, path = defaultEndpoint, arg
		}
		if path == "" {
			continue
		}
		if endpoint == "" {
			endpoint = defaultEndpoint
		}
		files = append(files, client.UploadFile{Endpoint: endpoint, Path: path})
	}
	return files
}

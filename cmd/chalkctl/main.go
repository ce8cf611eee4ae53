// chalkctl exercises the Chalk client core from the command line: it keeps
// a real encrypted session on disk and drives the same sign-in, onboarding,
// and mode-switch lifecycle the mobile app does.
//
// Usage:
//
//	chalkctl signup -email casey@example.com -password secret -first Casey
//	chalkctl signin -email casey@example.com -password secret
//	chalkctl whoami
//	chalkctl onboard -mode coach
//	chalkctl switch -mode client
//	chalkctl capabilities
//	chalkctl signout
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/chalkfit/chalk-client-go/authapi"
	"github.com/chalkfit/chalk-client-go/internal/config"
	"github.com/chalkfit/chalk-client-go/session"
	"github.com/chalkfit/chalk-client-go/store"
	"github.com/chalkfit/chalk-client-go/transport"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	flags := flag.NewFlagSet(command, flag.ExitOnError)
	email := flags.String("email", "", "account email")
	password := flags.String("password", "", "account password")
	firstName := flags.String("first", "", "first name")
	lastName := flags.String("last", "", "last name")
	modeName := flags.String("mode", "", "coach or client")
	if err := flags.Parse(args); err != nil {
		return err
	}

	c := config.New()

	secret := c.GetDeviceSecret()
	if secret == "" {
		return fmt.Errorf("DEVICE_SECRET must be set to unlock the session store")
	}

	blobs, err := store.NewFileStore(c.GetDataFolder(), []byte(secret))
	if err != nil {
		return err
	}

	tr := transport.New()
	api := authapi.New(c.GetAPIBaseURL(), &http.Client{
		Transport: tr,
		Timeout:   c.GetRequestTimeout(),
	})

	manager, err := session.NewManager(api, blobs, tr,
		session.WithEvictor(func(mode session.AppMode) {
			log.Info().Str("mode", string(mode)).Msg("evicting cached data")
		}),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: manager.RefreshAccessToken,
		OnAuthFailure:  func(ctx context.Context) { manager.SignOut(ctx) },
	})
	defer tr.ClearAuthHandlers()

	if err := manager.Hydrate(ctx); err != nil {
		return err
	}

	switch command {
	case "signin":
		if err := manager.SignIn(ctx, *email, *password); err != nil {
			return err
		}
	case "signup":
		input := session.RegisterInput{Email: *email, Password: *password, FirstName: *firstName, LastName: *lastName}
		if err := manager.SignUp(ctx, input); err != nil {
			return err
		}
	case "signout":
		manager.SignOut(ctx)
	case "whoami":
		// Hydrate already loaded the session; nothing else to do.
	case "onboard":
		mode := session.AppMode(*modeName)
		if !mode.Valid() {
			return fmt.Errorf("unknown mode %q", *modeName)
		}
		manager.CompleteOnboarding(mode)
	case "switch":
		mode := session.AppMode(*modeName)
		if !mode.Valid() {
			return fmt.Errorf("unknown mode %q", *modeName)
		}
		manager.SetActiveMode(mode)
	case "capabilities":
		if err := manager.RefreshCapabilities(ctx); err != nil {
			return err
		}
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}

	printSession(manager.Current())
	return nil
}

func printSession(current *session.Session) {
	if current == nil {
		fmt.Println("not signed in")
		return
	}

	banner := figure.NewFigure("Chalk", "cybermedium", true)
	banner.Print()
	fmt.Println()

	fmt.Printf("user:        %s <%s>\n", current.User.FirstName+" "+current.User.LastName, current.User.Email)
	fmt.Printf("token type:  %s (expires %s)\n", current.TokenType, current.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	if current.ActiveMode != nil {
		fmt.Printf("active mode: %s\n", *current.ActiveMode)
	} else {
		fmt.Println("active mode: none")
	}
	fmt.Printf("coach:       %s\n", describeCapability(current.Capabilities.Coach))
	fmt.Printf("client:      %s\n", describeCapability(current.Capabilities.Client))
}

func describeCapability(capability session.ModeCapability) string {
	if capability.Ready() {
		return "ready"
	}
	if capability.Available {
		return fmt.Sprintf("setup %s", capability.SetupStatus)
	}
	return "not engaged"
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: chalkctl <signin|signup|signout|whoami|onboard|switch|capabilities> [flags]")
}

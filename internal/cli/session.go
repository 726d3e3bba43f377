package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/billmal071/archivedl/internal/archive"
	"github.com/billmal071/archivedl/internal/config"
)

// openBook logs in, borrows bookID, starts renewal and resolves the page list.
// The caller owns the returned client and must Close it.
func openBook(ctx context.Context, bookID, email string) (*archive.Client, *archive.BookMetadata, error) {
	cfg := config.Get()

	email, password, err := credentials(email)
	if err != nil {
		return nil, nil, err
	}

	client, err := archive.NewClient(archive.Options{
		BaseURL:       cfg.Archive.BaseURL,
		Timeout:       cfg.Network.Timeout,
		UserAgent:     cfg.Network.UserAgent,
		RenewInterval: cfg.Loan.RenewInterval,
		RenewTimeout:  cfg.Loan.RenewTimeout,
	}, Log())
	if err != nil {
		return nil, nil, err
	}

	Printf("Logging in as %s...\n", email)
	if err := client.Login(ctx, email, password); err != nil {
		return nil, nil, describe(err)
	}

	Printf("Borrowing %s...\n", bookID)
	if err := client.Borrow(ctx, bookID); err != nil {
		client.Close()
		return nil, nil, describe(err)
	}
	if _, err := client.StartRenewal(ctx); err != nil {
		client.Close()
		return nil, nil, describe(err)
	}

	meta, err := client.ResolveMetadata(ctx)
	if err != nil {
		client.Close()
		return nil, nil, describe(err)
	}
	return client, meta, nil
}

// credentials resolves the account email (flag, then config, then prompt) and
// the password (environment, then prompt).
func credentials(email string) (string, string, error) {
	if email == "" {
		email = config.Get().Archive.Email
	}
	if email == "" {
		e, err := prompt(os.Stdin, "Email: ")
		if err != nil {
			return "", "", err
		}
		email = e
	}
	if email == "" {
		return "", "", errors.New("an archive.org account email is required")
	}

	password := config.Password()
	if password == "" {
		fmt.Print("Password: ")
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(b)
	}
	if password == "" {
		return "", "", errors.New("a password is required")
	}
	return email, password, nil
}

func prompt(r io.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// describe prefixes archive errors with what the user was trying to do
func describe(err error) error {
	switch {
	case errors.Is(err, archive.ErrAuthentication):
		return fmt.Errorf("login failed: %w", err)
	case errors.Is(err, archive.ErrBorrowDenied):
		return fmt.Errorf("could not borrow the book (already borrowed, waitlisted or not lendable): %w", err)
	case errors.Is(err, archive.ErrRenewalDenied):
		return fmt.Errorf("loan could not be renewed: %w", err)
	case errors.Is(err, archive.ErrMetadataParse):
		return fmt.Errorf("could not read the book's page list: %w", err)
	default:
		return err
	}
}

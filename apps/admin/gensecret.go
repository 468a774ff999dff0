package main

import (
	"context"
	"fmt"

	"github.com/trezcool/maoni/core/instance"
)

// generateSecretCode rotates the teacher registration code and prints it.
func (cli *commandLine) generateSecretCode() error {
	svc := instance.NewService(cli.db, cli.instRepo)
	code, err := svc.GenerateSecretCode(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Secret code: %s\n", code)
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/utils"
)

type accountsDocument struct {
	Accounts []models.Account `yaml:"accounts"`
}

// LoadAccounts reads the account list from EMAIL_ACCOUNTS (or its older name
// GMAIL_ACCOUNTS), falling back to ACCOUNTS_FILE. No source configured means
// no accounts.
func LoadAccounts(cfg *AppConfig) ([]models.Account, error) {
	if inline := utils.FirstNonEmpty(cfg.EmailAccounts, cfg.GmailAccounts); inline != "" {
		return ParseAccounts([]byte(inline))
	}
	if cfg.AccountsFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(cfg.AccountsFile)
	if err != nil {
		return nil, errors.Wrapf(apperrors.NewConfigError("ACCOUNTS_FILE", err.Error()), "read %s", cfg.AccountsFile)
	}
	return ParseAccounts(data)
}

// ParseAccounts accepts either a bare list of {email, password} entries or a
// document with an accounts key, in YAML or JSON.
func ParseAccounts(data []byte) ([]models.Account, error) {
	var accounts []models.Account
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		var doc accountsDocument
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, apperrors.NewConfigError("accounts", "not a list of {email, password}: "+err.Error())
		}
		accounts = doc.Accounts
	}
	return validateAccounts(accounts)
}

func validateAccounts(accounts []models.Account) ([]models.Account, error) {
	errs := apperrors.NewMultiErrors()
	seen := make(map[string]struct{}, len(accounts))
	result := make([]models.Account, 0, len(accounts))

	for i, account := range accounts {
		field := fmt.Sprintf("accounts[%d]", i)

		address, ok := utils.IsValidEmail(account.Address)
		if !ok {
			errs.AddConfig(apperrors.NewConfigError(field+".email", fmt.Sprintf("invalid address %q", account.Address)))
			continue
		}
		if account.Credential == "" {
			errs.AddConfig(apperrors.NewConfigError(field+".password", "is required"))
			continue
		}
		key := strings.ToLower(address)
		if _, dup := seen[key]; dup {
			errs.AddConfig(apperrors.NewConfigError(field+".email", "duplicate address "+address))
			continue
		}
		seen[key] = struct{}{}
		result = append(result, models.Account{Address: address, Credential: account.Credential})
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return result, nil
}

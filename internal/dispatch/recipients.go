// internal/dispatch/recipients.go
package dispatch

import (
	"slices"
	"strings"
)

// FilterValid returns the rows whose email field, trimmed, is non-empty and
// contains "@". Source order is kept; Position is the row index.
func FilterValid(rows []Row, emailField string) []Recipient {
	recipients := make([]Recipient, 0, len(rows))
	for i, row := range rows {
		email, ok := row[emailField]
		if !ok {
			continue
		}
		email = strings.TrimSpace(email)
		if email == "" || !strings.Contains(email, "@") {
			continue
		}
		recipients = append(recipients, Recipient{
			Position: i,
			Email:    email,
			Fields:   row,
		})
	}
	return recipients
}

// Batch is the half-open range [Start, End) of the recipient sequence.
type Batch struct {
	Number int
	Start  int
	End    int
}

func (b Batch) Size() int {
	return b.End - b.Start
}

// BatchCount is ceil(count / size).
func BatchCount(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}

// Partition splits count recipients into consecutive batches of at most size.
func Partition(count, size int) []Batch {
	n := BatchCount(count, size)
	batches := make([]Batch, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if end > count {
			end = count
		}
		batches = append(batches, Batch{Number: i, Start: start, End: end})
	}
	return batches
}

var (
	emailColumnNames   = []string{"email", "e-mail", "email address"}
	companyColumnNames = []string{"org. name", "org name", "organization", "company", "company name"}
)

// ColumnGuess is a suggestion for hosting layers that ask the user to pick
// columns. The dispatcher never applies it on its own.
type ColumnGuess struct {
	EmailColumn   string `json:"emailColumn"`
	CompanyColumn string `json:"companyColumn"`
}

// DetectColumns guesses the email and company columns from header names.
// Exact names win over partial matches, and the first match of each kind is
// kept. The company column falls back to the first column. When no header
// names an email column, the first column after the leading one with a cell
// containing "@" in rows is used.
func DetectColumns(columns []string, rows []Row) ColumnGuess {
	var guess ColumnGuess

	for _, col := range columns {
		lower := strings.ToLower(strings.TrimSpace(col))
		if guess.EmailColumn == "" && slices.Contains(emailColumnNames, lower) {
			guess.EmailColumn = col
		}
		if guess.CompanyColumn == "" && slices.Contains(companyColumnNames, lower) {
			guess.CompanyColumn = col
		}
	}

	for _, col := range columns {
		lower := strings.ToLower(col)
		if guess.EmailColumn == "" && strings.Contains(lower, "mail") {
			guess.EmailColumn = col
		}
		if guess.CompanyColumn == "" && col != guess.EmailColumn &&
			(strings.Contains(lower, "org") || strings.Contains(lower, "company")) {
			guess.CompanyColumn = col
		}
	}

	if guess.CompanyColumn == "" && len(columns) > 0 {
		guess.CompanyColumn = columns[0]
	}
	if guess.EmailColumn == "" && len(columns) > 1 {
		guess.EmailColumn = columnWithAddress(columns[1:], rows)
	}
	return guess
}

func columnWithAddress(columns []string, rows []Row) string {
	for _, col := range columns {
		for _, row := range rows {
			if strings.Contains(row[col], "@") {
				return col
			}
		}
	}
	return ""
}

package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"whatsapp-hubspot-bridge/internal/hubspot"
)

var phonePunctuation = regexp.MustCompile(`[\s\-\+\(\)]`)

// PhoneFormats builds the ordered, de-duplicated set of phone string
// variants tried during contact resolution: the raw value, the
// punctuation-stripped value, its +-prefixed form, a country-code
// substitution, the stripped value with the leading two digits removed, and
// that remainder re-prefixed with the country code. The probing is a
// best-effort workaround for inconsistent phone storage formats in the CRM.
func PhoneFormats(phone, countryCode string) []string {
	clean := phonePunctuation.ReplaceAllString(phone, "")

	candidates := []string{
		phone,
		clean,
		"+" + clean,
	}
	if strings.HasPrefix(clean, countryCode) {
		candidates = append(candidates, "+"+countryCode+clean[len(countryCode):])
	} else {
		candidates = append(candidates, clean)
	}
	if len(clean) > 2 {
		candidates = append(candidates, clean[2:], "+"+countryCode+clean[2:])
	}

	seen := make(map[string]struct{}, len(candidates))
	formats := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		formats = append(formats, candidate)
	}
	return formats
}

// ContactResolver resolves phone numbers to HubSpot contact IDs.
type ContactResolver struct {
	hubspot     *hubspot.Client
	countryCode string
}

// NewContactResolver creates a new ContactResolver.
func NewContactResolver(hsClient *hubspot.Client, countryCode string) (*ContactResolver, error) {
	if hsClient == nil {
		return nil, fmt.Errorf("HubSpot client cannot be nil")
	}
	if countryCode == "" {
		return nil, fmt.Errorf("country code cannot be empty")
	}
	return &ContactResolver{hubspot: hsClient, countryCode: countryCode}, nil
}

// FindContactByPhone tries each phone format exactly once, in order,
// stopping at the first search that returns a result. It returns "" when no
// format matched; that is a normal outcome, not an error. The match must
// never be treated as authoritative contact deduplication.
func (r *ContactResolver) FindContactByPhone(ctx context.Context, phone string) (string, error) {
	formats := PhoneFormats(phone, r.countryCode)
	log.Debug().Strs("formats", formats).Str("phone", phone).Msg("Searching for contact")

	for _, format := range formats {
		result, err := r.hubspot.SearchContactsByPhone(ctx, format)
		if err != nil {
			return "", fmt.Errorf("contact search for %q failed: %w", format, err)
		}
		log.Debug().Str("format", format).Int("results", len(result.Results)).Msg("Contact search completed")

		if len(result.Results) > 0 {
			contact := result.Results[0]
			log.Info().Str("contactID", contact.ID).Str("format", format).Msg("Found HubSpot contact")
			return contact.ID, nil
		}
	}

	log.Info().Str("phone", phone).Msg("No HubSpot contact found")
	return "", nil
}

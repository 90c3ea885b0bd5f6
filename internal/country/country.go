// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package country provides the selectable countries of the search form.
package country

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Codes lists the ISO 3166-1 alpha-2 codes of all officially assigned countries.
var Codes = []string{
	"AD", "AE", "AF", "AG", "AI", "AL", "AM", "AO", "AQ", "AR", "AS", "AT", "AU", "AW", "AX", "AZ",
	"BA", "BB", "BD", "BE", "BF", "BG", "BH", "BI", "BJ", "BL", "BM", "BN", "BO", "BQ", "BR", "BS",
	"BT", "BV", "BW", "BY", "BZ", "CA", "CC", "CD", "CF", "CG", "CH", "CI", "CK", "CL", "CM", "CN",
	"CO", "CR", "CU", "CV", "CW", "CX", "CY", "CZ", "DE", "DJ", "DK", "DM", "DO", "DZ", "EC", "EE",
	"EG", "EH", "ER", "ES", "ET", "FI", "FJ", "FK", "FM", "FO", "FR", "GA", "GB", "GD", "GE", "GF",
	"GG", "GH", "GI", "GL", "GM", "GN", "GP", "GQ", "GR", "GS", "GT", "GU", "GW", "GY", "HK", "HM",
	"HN", "HR", "HT", "HU", "ID", "IE", "IL", "IM", "IN", "IO", "IQ", "IR", "IS", "IT", "JE", "JM",
	"JO", "JP", "KE", "KG", "KH", "KI", "KM", "KN", "KP", "KR", "KW", "KY", "KZ", "LA", "LB", "LC",
	"LI", "LK", "LR", "LS", "LT", "LU", "LV", "LY", "MA", "MC", "MD", "ME", "MF", "MG", "MH", "MK",
	"ML", "MM", "MN", "MO", "MP", "MQ", "MR", "MS", "MT", "MU", "MV", "MW", "MX", "MY", "MZ", "NA",
	"NC", "NE", "NF", "NG", "NI", "NL", "NO", "NP", "NR", "NU", "NZ", "OM", "PA", "PE", "PF", "PG",
	"PH", "PK", "PL", "PM", "PN", "PR", "PS", "PT", "PW", "PY", "QA", "RE", "RO", "RS", "RU", "RW",
	"SA", "SB", "SC", "SD", "SE", "SG", "SH", "SI", "SJ", "SK", "SL", "SM", "SN", "SO", "SR", "SS",
	"ST", "SV", "SX", "SY", "SZ", "TC", "TD", "TF", "TG", "TH", "TJ", "TK", "TL", "TM", "TN", "TO",
	"TR", "TT", "TV", "TW", "TZ", "UA", "UG", "UM", "US", "UY", "UZ", "VA", "VC", "VE", "VG", "VI",
	"VN", "VU", "WF", "WS", "YE", "YT", "ZA", "ZM", "ZW",
}

// Country is a selectable country.
type Country struct {
	// Code is the lowercase ISO 3166-1 alpha-2 code, as expected by the geocoder's country filter.
	Code string
	Name string
}

// List returns the countries for the given codes with names in the language of tag, sorted by name.
// An empty codes list selects all countries.
func List(codes []string, tag language.Tag) ([]Country, error) {
	if len(codes) == 0 {
		codes = Codes
	}
	namer := display.Regions(tag)
	countries := make([]Country, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		region, err := language.ParseRegion(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("invalid country code %q: %w", code, err)
		}
		key := strings.ToLower(region.String())
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		name := namer.Name(region)
		if name == "" {
			name = region.String()
		}
		countries = append(countries, Country{Code: key, Name: name})
	}

	collator := collate.New(tag)
	slices.SortStableFunc(countries, func(a, b Country) int {
		return collator.CompareString(a.Name, b.Name)
	})
	return countries, nil
}

// Validate reports whether code is an assigned country code.
func Validate(code string) error {
	region, err := language.ParseRegion(strings.TrimSpace(code))
	if err != nil || !region.IsCountry() {
		return fmt.Errorf("invalid country code %q", code)
	}
	return nil
}

package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"growth_backend/platform/phone"
)

var piiKeys = map[string]struct{}{
	"email": {}, "emailaddress": {}, "mail": {},
	"phone": {}, "phonenumber": {}, "mobile": {}, "tel": {}, "telephone": {}, "whatsapp": {},
	"name": {}, "firstname": {}, "lastname": {}, "fullname": {}, "surname": {}, "givenname": {},
	"address": {}, "street": {}, "streetaddress": {}, "postcode": {}, "postalcode": {}, "zip": {}, "zipcode": {},
	"ip": {}, "ipaddress": {}, "ssn": {}, "dob": {}, "dateofbirth": {}, "birthdate": {}, "password": {},
}

var emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)

// FindPII returns the payload paths whose key names a personal field or
// whose string value contains an email address or is shaped like a phone
// number.
// Paths are dotted, with list indexes in brackets, and sorted.
func FindPII(payload map[string]any, region string) []string {
	var hits []string
	walkPII(payload, "", region, &hits)
	sort.Strings(hits)
	return hits
}

func walkPII(value any, path, region string, hits *[]string) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if isPIIKey(key) {
				*hits = append(*hits, childPath)
				continue
			}
			walkPII(child, childPath, region, hits)
		}
	case []any:
		for i, child := range v {
			walkPII(child, path+"["+strconv.Itoa(i)+"]", region, hits)
		}
	case string:
		s := strings.TrimSpace(v)
		if emailPattern.MatchString(s) || looksLikeBarePhone(s, region) {
			*hits = append(*hits, path)
		}
	}
}

func isPIIKey(key string) bool {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(key))
	_, ok := piiKeys[normalized]
	return ok
}

// looksLikeBarePhone only considers values made of phone punctuation so
// URLs and slugs with long digit runs are not flagged.
func looksLikeBarePhone(s, region string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case strings.ContainsRune("+-() .", r):
		default:
			return false
		}
	}
	return phone.LooksLikePhone(s, region)
}

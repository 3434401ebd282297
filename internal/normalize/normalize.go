// Package normalize turns one raw statement row into canonical transaction
// fields: transaction type classification, extracted transaction code and
// phone numbers, and sanitized monetary amounts.
package normalize

import (
	"regexp"
	"strings"
)

// Transaction type classifications derived from the narrative.
const (
	TypePaybill      = "mpesa_paybill"
	TypeMobileMoney  = "mpesa_bank"
	TypeBankApp      = "bank_app"
	TypeBankTransfer = "bank_transfer"
	TypeBankAgent    = "bank_agent"
	TypeFundsTrans   = "funds_transfer"
)

// Parsed is the structured data extracted from a narrative.
type Parsed struct {
	Type            string
	TransactionCode string
	Phones          []string
	PhoneLast3      string // last 3 digits of a masked paybill phone
	MemberNumber    string
	MemberName      string
	PayerName       string
}

var (
	rePaybill     = regexp.MustCompile(`(?i)\bPAY\s*BILL\b|\bAcc\.?\s`)
	reMobileMoney = regexp.MustCompile(`(?i)\bMPS\b`)
	reBankApp     = regexp.MustCompile(`(?i)\bAPP\b`)
	reBankXfer    = regexp.MustCompile(`(?i)\bTPG\b|\bPESALINK\b`)
	reFundsTrans  = regexp.MustCompile(`(?i)\bEAZZY[- ]FUNDS\b`)
	reBankAgent   = regexp.MustCompile(`(?i)\bENTERPRTBY\b`)
	reAgentRef    = regexp.MustCompile(`/(\d{12})/`)

	reFullPhone   = regexp.MustCompile(`\b(254\d{9})\b`)
	reMaskedPhone = regexp.MustCompile(`\b(?:2547\d|07\d)\*{3,5}(\d{3})\b`)

	reCodeAfterMPS = regexp.MustCompile(`(?i)MPS\s+([A-Za-z][A-Za-z0-9]{7,14})\b`)
	reCodeGeneric  = regexp.MustCompile(`\b([A-Z][A-Z0-9]{7,14})\b`)
	reCodeTPG      = regexp.MustCompile(`(?i)TPG\s+([A-Za-z0-9]+)`)
	reDigitsOnly   = regexp.MustCompile(`^\d+$`)

	reMemberNumber = regexp.MustCompile(`(?i)MPS\s+(?:254\d{9}\s+)?(?:[A-Z][A-Z0-9]+\s+)?(\d{4,6})#?`)

	reAccName    = regexp.MustCompile(`(?i)\bAcc\.?\s+(.+?)\s*$`)
	rePayerName  = regexp.MustCompile(`(?i)-\s+([A-Z\s\*]+?)\s+Acc\.?`)
	reAppName    = regexp.MustCompile(`(?i)APP/(.+?)(?:/|$)`)
	reXferName   = regexp.MustCompile(`(?i)TRANSFER\s+(.+?)(?:\s*/|\s*$)`)
	reFundsName  = regexp.MustCompile(`(?i)EAZZY-FUNDS\s+TRNSF\s+FRM\s+(.+?)\s*$`)
	reUpperWords = regexp.MustCompile(`^[A-Z\s]+$`)
)

// ParseParticulars extracts structured data from a free-text narrative.
func ParseParticulars(particulars string) Parsed {
	particulars = strings.TrimSpace(particulars)
	p := Parsed{Type: detectType(particulars)}

	switch p.Type {
	case TypePaybill:
		parsePaybill(particulars, &p)
	case TypeMobileMoney:
		parseMobileMoney(particulars, &p)
	case TypeBankApp:
		if m := reAppName.FindStringSubmatch(particulars); m != nil {
			p.MemberName = strings.TrimSpace(m[1])
		}
	case TypeBankTransfer:
		if m := reCodeTPG.FindStringSubmatch(particulars); m != nil {
			p.TransactionCode = strings.ToUpper(m[1])
		}
		if m := reXferName.FindStringSubmatch(particulars); m != nil {
			name := strings.TrimSpace(m[1])
			if !reDigitsOnly.MatchString(name) {
				p.MemberName = name
			}
		}
	case TypeBankAgent:
		if m := reAgentRef.FindStringSubmatch(particulars); m != nil {
			p.TransactionCode = m[1]
		}
	case TypeFundsTrans:
		if m := reFundsName.FindStringSubmatch(particulars); m != nil {
			p.MemberName = strings.TrimSpace(m[1])
		}
	default:
		parseGeneric(particulars, &p)
	}

	return p
}

func detectType(particulars string) string {
	switch {
	// Paybill first: its narratives can also contain MPS tokens.
	case rePaybill.MatchString(particulars):
		return TypePaybill
	case reMobileMoney.MatchString(particulars):
		return TypeMobileMoney
	case reBankApp.MatchString(particulars):
		return TypeBankApp
	case reBankXfer.MatchString(particulars):
		return TypeBankTransfer
	case reFundsTrans.MatchString(particulars):
		return TypeFundsTrans
	case reBankAgent.MatchString(particulars) || reAgentRef.MatchString(particulars):
		return TypeBankAgent
	default:
		return ""
	}
}

func parseMobileMoney(particulars string, p *Parsed) {
	for _, m := range reFullPhone.FindAllStringSubmatch(particulars, -1) {
		p.Phones = appendUnique(p.Phones, m[1])
	}

	// Transaction code after the MPS marker, unless it is really a phone.
	if m := reCodeAfterMPS.FindStringSubmatch(particulars); m != nil {
		if !reFullPhone.MatchString(m[1]) {
			p.TransactionCode = strings.ToUpper(m[1])
		}
	} else if len(p.Phones) == 0 {
		for _, m := range reCodeGeneric.FindAllStringSubmatch(particulars, -1) {
			candidate := m[1]
			if reFullPhone.MatchString(candidate) || reDigitsOnly.MatchString(candidate) {
				continue
			}
			p.TransactionCode = strings.ToUpper(candidate)
			break
		}
	}

	if m := reMemberNumber.FindStringSubmatch(particulars); m != nil {
		if !strings.HasPrefix(m[1], "254") {
			p.MemberNumber = m[1]
		}
	}

	// Whatever remains after stripping marker, phone, code and member
	// number is the payer's name.
	name := particulars
	name = regexp.MustCompile(`(?i)^MPS\s+`).ReplaceAllString(name, "")
	name = reFullPhone.ReplaceAllString(name, "")
	if p.TransactionCode != "" {
		name = strings.ReplaceAll(name, p.TransactionCode, "")
	}
	if p.MemberNumber != "" {
		name = regexp.MustCompile(regexp.QuoteMeta(p.MemberNumber) + `#?`).ReplaceAllString(name, "")
	}
	name = strings.TrimSpace(strings.Join(strings.Fields(name), " "))
	if name != "" && reUpperWords.MatchString(name) {
		p.MemberName = name
	}
}

func parsePaybill(particulars string, p *Parsed) {
	// Paybill phones are masked; only the last 3 digits survive.
	if m := reMaskedPhone.FindStringSubmatch(particulars); m != nil {
		p.PhoneLast3 = m[1]
	}

	// The account name after "Acc." is what the payer typed as the member
	// identity and is the primary matching signal.
	if m := reAccName.FindStringSubmatch(particulars); m != nil {
		name := strings.TrimSpace(m[1])
		if len(name) > 1 {
			p.MemberName = name
		}
	}

	if m := rePayerName.FindStringSubmatch(particulars); m != nil {
		payer := strings.TrimSpace(strings.ReplaceAll(m[1], "*", ""))
		if len(payer) > 2 {
			p.PayerName = payer
		}
	}
}

func parseGeneric(particulars string, p *Parsed) {
	for _, m := range reFullPhone.FindAllStringSubmatch(particulars, -1) {
		p.Phones = appendUnique(p.Phones, m[1])
	}
	for _, m := range reCodeGeneric.FindAllStringSubmatch(particulars, -1) {
		candidate := m[1]
		if reFullPhone.MatchString(candidate) || reDigitsOnly.MatchString(candidate) {
			continue
		}
		p.TransactionCode = candidate
		break
	}
}

// NormalizePhone canonicalizes a phone number for comparison: digits only,
// local prefix 0 rewritten to the 254 country code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = "254" + digits[1:]
	}
	return digits
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

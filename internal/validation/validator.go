package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"charity-auction/internal/biddingerrors"
	"charity-auction/utils"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Form field keys used in validation results.
const (
	FieldName   = "bidder_name"
	FieldAmount = "bid_amount"
	FieldEmail  = "bidder_email"
	FieldPhone  = "bidder_phone"
)

const (
	minNameLength  = 2
	maxNameLength  = 100
	maxEmailLength = 254
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var namePattern = regexp.MustCompile(`^[\p{L}\s\-'.]+$`)

var amountSeparators = strings.NewReplacer(",", "", " ", "", "_", "")

// Policy holds the business rules a bid is checked against.
type Policy struct {
	// IdentityRequired makes email and phone mandatory. When false they are
	// optional but still validated if supplied.
	IdentityRequired bool
	MinAmount        int64
	MaxAmount        int64
	MinIncrement     int64
	Currency         string
}

// DefaultPolicy returns the charity auction defaults.
func DefaultPolicy() Policy {
	return Policy{
		IdentityRequired: false,
		MinAmount:        1,
		MaxAmount:        1000000,
		MinIncrement:     50,
		Currency:         "MWK",
	}
}

// Input is a proposed bid together with the state it is judged against.
type Input struct {
	Amount        string
	Name          string
	Email         string
	Phone         string
	CurrentBid    int64
	RecentAmounts []int64
}

// Normalized is the sanitized bid, valid only when the Result has no errors.
// Phone holds digits only.
type Normalized struct {
	Amount int64
	Name   string
	Email  string
	Phone  string
}

// Result maps field keys to human-readable reasons. An empty map means accepted.
type Result struct {
	Errors map[string]string
	Bid    Normalized
}

// OK reports whether the bid was accepted.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Err returns a *biddingerrors.ValidationError or nil.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	fields := make(map[string]string, len(r.Errors))
	for k, v := range r.Errors {
		fields[k] = v
	}
	return &biddingerrors.ValidationError{Fields: fields}
}

// Validator checks proposed bids. It holds no mutable state, so identical
// inputs always produce identical results.
type Validator struct {
	policy Policy
	fields *validator.Validate
}

// New creates a Validator for the given policy.
func New(policy Policy) *Validator {
	return &Validator{
		policy: policy,
		fields: validator.New(),
	}
}

// Policy returns the rules this validator enforces.
func (v *Validator) Policy() Policy { return v.policy }

// Validate checks every field independently; the first failing rule per field wins.
func (v *Validator) Validate(in Input) Result {
	res := Result{Errors: map[string]string{}}

	if name, reason := v.validateName(in.Name); reason != "" {
		res.Errors[FieldName] = reason
	} else {
		res.Bid.Name = name
	}

	if amount, reason := v.ValidateAmount(in.Amount, in.CurrentBid, in.RecentAmounts); reason != "" {
		res.Errors[FieldAmount] = reason
	} else {
		res.Bid.Amount = amount
	}

	if email, reason := v.validateEmail(in.Email); reason != "" {
		res.Errors[FieldEmail] = reason
	} else {
		res.Bid.Email = email
	}

	if phone, reason := v.validatePhone(in.Phone); reason != "" {
		res.Errors[FieldPhone] = reason
	} else {
		res.Bid.Phone = phone
	}

	return res
}

func (v *Validator) validateName(raw string) (string, string) {
	name, altered := Sanitize(raw)
	switch {
	case altered:
		return "", "Name contains characters that are not allowed"
	case name == "":
		return "", "Name is required"
	case utf8.RuneCountInString(name) < minNameLength:
		return "", fmt.Sprintf("Name must be at least %d characters", minNameLength)
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", fmt.Sprintf("Name must be at most %d characters", maxNameLength)
	case !namePattern.MatchString(name):
		return "", "Name can only contain letters, spaces, hyphens, apostrophes, and periods"
	}
	return name, ""
}

// ValidateAmount parses raw and checks it against bounds, the current bid,
// the minimum increment and the loaded history sample.
func (v *Validator) ValidateAmount(raw string, currentBid int64, recent []int64) (int64, string) {
	cleaned, altered := Sanitize(raw)
	if altered {
		return 0, "Bid amount contains characters that are not allowed"
	}
	cleaned = amountSeparators.Replace(cleaned)
	if cleaned == "" {
		return 0, "Bid amount is required"
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.Sign() <= 0 {
		return 0, "Please enter a valid bid amount"
	}
	if !d.IsInteger() {
		return 0, "Bid amount must be a whole number"
	}
	if d.LessThan(decimal.NewFromInt(v.policy.MinAmount)) {
		return 0, "Minimum bid amount is " + v.money(v.policy.MinAmount)
	}
	if d.GreaterThan(decimal.NewFromInt(v.policy.MaxAmount)) {
		return 0, "Maximum bid amount is " + v.money(v.policy.MaxAmount)
	}

	amount := d.IntPart()
	if amount <= currentBid {
		return 0, "Bid must be higher than current bid of " + v.money(currentBid)
	}
	if amount < currentBid+v.policy.MinIncrement {
		return 0, "Minimum bid increment is " + v.money(v.policy.MinIncrement)
	}
	for _, existing := range recent {
		if existing == amount {
			return 0, "A bid with this exact amount already exists. Please try a different amount."
		}
	}
	return amount, ""
}

func (v *Validator) validateEmail(raw string) (string, string) {
	email, altered := Sanitize(raw)
	switch {
	case altered:
		return "", "Email contains characters that are not allowed"
	case email == "":
		if v.policy.IdentityRequired {
			return "", "Email is required"
		}
		return "", ""
	case len(email) > maxEmailLength:
		return "", "Email address is too long"
	case v.fields.Var(email, "email") != nil:
		return "", "Please enter a valid email address"
	}
	return email, ""
}

func (v *Validator) validatePhone(raw string) (string, string) {
	phone, altered := Sanitize(raw)
	if altered {
		return "", "Phone number contains characters that are not allowed"
	}
	if phone == "" {
		if v.policy.IdentityRequired {
			return "", "Phone number is required"
		}
		return "", ""
	}
	digits, ok := NormalizePhone(phone)
	if !ok || len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", fmt.Sprintf("Please enter a valid phone number (%d-%d digits)", minPhoneDigits, maxPhoneDigits)
	}
	return digits, ""
}

// Recheck is the admission check run against a freshly fetched highest bid
// immediately before the bid is created.
func (v *Validator) Recheck(amount, freshCurrent int64) error {
	if amount <= freshCurrent {
		return &biddingerrors.ConflictError{Reason: biddingerrors.ReasonNotHigher, CurrentBid: freshCurrent}
	}
	if amount < freshCurrent+v.policy.MinIncrement {
		return &biddingerrors.ConflictError{Reason: biddingerrors.ReasonMinIncrement, CurrentBid: freshCurrent}
	}
	return nil
}

func (v *Validator) money(amount int64) string {
	return utils.FormatCurrency(amount, v.policy.Currency)
}

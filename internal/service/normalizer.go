package service

import (
	"errors"
	"fmt"
	"strings"

	"invnorm/internal/derive"
	"invnorm/internal/domain"
	"invnorm/internal/validator"
)

// Normalizer turns raw rows into normalized records. It holds no per-row
// state and is safe for concurrent use.
type Normalizer struct{}

// NewNormalizer creates a normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// rowAnomalies accumulates the anomalies of one row in emission order
type rowAnomalies struct {
	rowID   int
	entries []domain.AnomalyEntry
}

func (a *rowAnomalies) add(field string, sev domain.Severity, kind domain.ErrorKind, reason, remediation, value string) {
	a.entries = append(a.entries, domain.NewAnomaly(a.rowID, field, sev, kind, reason, remediation, value))
}

// Normalize validates raw in the fixed field order and derives the
// dependent fields. The raw record is never modified.
func (n *Normalizer) Normalize(raw domain.RawRecord) (*domain.NormalizedRecord, []domain.AnomalyEntry) {
	rec := domain.NewNormalizedRecord(raw.RowID)
	rec.SourceID = raw.SourceID
	an := &rowAnomalies{rowID: raw.RowID}

	n.normalizeIP(raw, rec, an)
	n.normalizeMAC(raw, rec, an)
	n.normalizeNames(raw, rec, an)
	n.normalizeOwner(raw, rec, an)
	n.normalizeDeviceType(raw, rec, an)
	n.normalizeSite(raw, rec, an)

	rec.Notes = validator.Clean(raw.Get(domain.FieldNotes))
	if len(raw.Extra) > 0 {
		rec.Extra = make(map[string]string, len(raw.Extra))
		for k, v := range raw.Extra {
			rec.Extra[k] = v
		}
	}

	return rec, an.entries
}

func (n *Normalizer) normalizeIP(raw domain.RawRecord, rec *domain.NormalizedRecord, an *rowAnomalies) {
	value := raw.Get(domain.FieldIP)
	ip, err := validator.ParseIP(value)

	switch {
	case validator.IsMissing(err):
		rec.AddStep("ip_missing")
		an.add(domain.FieldIP, domain.SeverityWarning, domain.KindFieldMissing,
			"ip is missing", "Provide the asset's IPv4 or IPv6 address.", value)
		n.skipDerivations(rec, an, "ip is missing")
		return

	case err != nil:
		rec.AddStep("ip_validation_failed")
		an.add(domain.FieldIP, domain.SeverityError, domain.KindFieldInvalid,
			"invalid IP address: "+err.Error(), ipRemediation(err), value)
		n.skipDerivations(rec, an, "ip is invalid")
		return
	}

	rec.IP = domain.StringPtr(ip.Canonical)
	version := ip.Version
	rec.IPVersion = &version
	rec.AddStep(fmt.Sprintf("ip_validated_%d", ip.Version))

	if ip.Zone != "" {
		rec.AddStep("ip_zone_stripped")
		an.add(domain.FieldIP, domain.SeverityInfo, domain.KindFieldNote,
			fmt.Sprintf("zone identifier %q stripped from address", ip.Zone),
			"Zone identifiers are interface-local; record the interface separately if it matters.", value)
	}

	rec.ReversePTR = domain.StringPtr(derive.ReversePTR(ip.Addr))
	rec.AddStep("reverse_ptr_generated")

	subnet := derive.SubnetCIDR(ip.Addr)
	switch {
	case subnet.Assigned():
		rec.SubnetCIDR = domain.StringPtr(subnet.CIDR)
		rec.AddStep("subnet_cidr_generated")
		if subnet.Edge != derive.EdgeNone {
			an.add(domain.FieldIP, domain.SeverityInfo, domain.KindFieldNote,
				fmt.Sprintf("%s address of %s", subnet.Edge, subnet.CIDR),
				"Hosts are rarely assigned the network or broadcast address; verify this entry.", ip.Canonical)
		}
	case subnet.Flagged():
		rec.AddStep("subnet_cidr_flagged")
		an.add(domain.FieldSubnetCIDR, domain.SeverityInfo, domain.KindFieldNote,
			fmt.Sprintf("%s address in %s; no subnet assigned", subnet.Class, subnet.Block),
			"Special-purpose range; confirm the address belongs in the inventory.", ip.Canonical)
	default:
		rec.AddStep("subnet_cidr_skipped")
		an.add(domain.FieldSubnetCIDR, domain.SeverityInfo, domain.KindFieldNote,
			"no subnet derived for public address; heuristic only, not authoritative",
			"Look the allocation up in IPAM; the heuristic only covers reserved ranges.", ip.Canonical)
	}
}

func (n *Normalizer) skipDerivations(rec *domain.NormalizedRecord, an *rowAnomalies, why string) {
	rec.AddStep("derivations_skipped")
	an.add(domain.FieldReversePTR, domain.SeverityInfo, domain.KindDerivationSkipped,
		why+"; reverse pointer not derived", "Fix the ip field to derive the reverse pointer.", "")
	an.add(domain.FieldSubnetCIDR, domain.SeverityInfo, domain.KindDerivationSkipped,
		why+"; subnet not derived", "Fix the ip field to derive the subnet.", "")
}

func ipRemediation(err error) string {
	switch {
	case errors.Is(err, validator.ErrOutOfRange):
		return "Each IPv4 octet must be 0-255 and each IPv6 group at most 4 hex digits; correct the address."
	case errors.Is(err, validator.ErrWrongArity):
		return "IPv4 needs exactly 4 octets and IPv6 8 groups (or '::'); correct the truncated or extended address."
	default:
		return "Write the address in plain dotted-quad or colon-hex form without leading zeros."
	}
}

func (n *Normalizer) normalizeMAC(raw domain.RawRecord, rec *domain.NormalizedRecord, an *rowAnomalies) {
	value := raw.Get(domain.FieldMAC)
	mac, err := validator.ParseMAC(value)

	switch {
	case validator.IsMissing(err):
		// MAC is optional
	case err != nil:
		rec.AddStep("mac_validation_failed")
		an.add(domain.FieldMAC, domain.SeverityError, domain.KindFieldInvalid,
			"invalid MAC address: "+err.Error(), "Use six two-digit hex octets, e.g. aa:bb:cc:dd:ee:ff.", value)
	default:
		rec.MAC = domain.StringPtr(mac)
		rec.AddStep("mac_normalized")
	}
}

func (n *Normalizer) normalizeNames(raw domain.RawRecord, rec *domain.NormalizedRecord, an *rowAnomalies) {
	hostValue := raw.Get(domain.FieldHostname)
	host, err := validator.ParseHostname(hostValue)

	switch {
	case validator.IsMissing(err):
		rec.AddStep("hostname_missing")
		an.add(domain.FieldHostname, domain.SeverityWarning, domain.KindFieldMissing,
			"hostname is missing", "Provide a single DNS label for the host.", hostValue)
	case err != nil:
		rec.AddStep("hostname_validation_failed")
		an.add(domain.FieldHostname, domain.SeverityError, domain.KindFieldInvalid,
			"invalid hostname: "+err.Error(), nameRemediation(err, "Use an RFC 1123 label: a-z, 0-9 and inner hyphens, at most 63 characters."), hostValue)
	default:
		rec.Hostname = domain.StringPtr(host.Name)
		rec.AddStep("hostname_normalized")
		if host.LooksLikeFQDN {
			rec.AddStep("hostname_fqdn_split")
			an.add(domain.FieldHostname, domain.SeverityInfo, domain.KindFieldNote,
				fmt.Sprintf("hostname looks like an FQDN; kept first label %q", host.Name),
				fmt.Sprintf("Put %q in the fqdn field and the short name in hostname.", host.FQDN), hostValue)
		}
	}

	fqdnValue := raw.Get(domain.FieldFQDN)
	fqdn, err := validator.ParseFQDN(fqdnValue)

	switch {
	case validator.IsMissing(err):
		rec.AddStep("fqdn_missing")
	case err != nil:
		rec.AddStep("fqdn_validation_failed")
		an.add(domain.FieldFQDN, domain.SeverityError, domain.KindFieldInvalid,
			"invalid fqdn: "+err.Error(), nameRemediation(err, "Use dot-separated RFC 1123 labels, at most 253 characters in total."), fqdnValue)
	default:
		rec.FQDN = domain.StringPtr(fqdn)
		rec.AddStep("fqdn_normalized")
	}

	if rec.Hostname == nil || rec.FQDN == nil {
		return
	}
	rec.FQDNConsistent = validator.FQDNConsistent(*rec.Hostname, *rec.FQDN)
	rec.AddStep(fmt.Sprintf("fqdn_consistency_check_%t", rec.FQDNConsistent))
	if !rec.FQDNConsistent {
		an.add(domain.FieldFQDN, domain.SeverityWarning, domain.KindFieldNote,
			fmt.Sprintf("fqdn %q does not start with hostname %q", *rec.FQDN, *rec.Hostname),
			"Ensure the FQDN starts with hostname + '.'.", fqdnValue)
	}
}

func nameRemediation(err error, base string) string {
	var verr *validator.Error
	if errors.As(err, &verr) && verr.Suggestion != "" {
		return fmt.Sprintf("%s Suggested: %q.", base, verr.Suggestion)
	}
	return base
}

func (n *Normalizer) normalizeOwner(raw domain.RawRecord, rec *domain.NormalizedRecord, an *rowAnomalies) {
	value := raw.Get(domain.FieldOwner)
	if validator.Clean(value) == "" {
		rec.AddStep("owner_missing")
		an.add(domain.FieldOwner, domain.SeverityInfo, domain.KindFieldMissing,
			"owner is missing", "Provide an owner name, email or team.", value)
		return
	}

	owner := derive.ExtractOwner(value)
	for _, step := range owner.Steps {
		rec.AddStep(step)
	}

	if owner.Name != "" {
		rec.OwnerName = domain.StringPtr(owner.Name)
		rec.SetSource(domain.FieldOwnerName, domain.SourceRule)
	}
	if owner.Email != "" {
		rec.OwnerEmail = domain.StringPtr(owner.Email)
		rec.SetSource(domain.FieldOwnerEmail, domain.SourceRule)
	}
	if owner.Team != "" {
		rec.OwnerTeam = domain.StringPtr(owner.Team)
		rec.SetSource(domain.FieldOwnerTeam, domain.SourceRule)
	}

	if owner.NameFromEmail {
		an.add(domain.FieldOwnerName, domain.SeverityInfo, domain.KindFieldNote,
			"owner name inferred from the email local part", "Confirm the owner's display name.", owner.Email)
	}
	if owner.Conflict {
		rec.TeamConflict = true
		an.add(domain.FieldOwnerTeam, domain.SeverityWarning, domain.KindFieldNote,
			fmt.Sprintf("owner names several teams (%s); team left empty", strings.Join(owner.Teams, ", ")),
			"Keep a single team in the owner text or fill owner_team explicitly.", value)
	}
	if owner.Name == "" && owner.Email == "" && owner.Team == "" && !owner.Conflict {
		an.add(domain.FieldOwner, domain.SeverityWarning, domain.KindFieldInvalid,
			"owner text yielded no name, email or team", "Rewrite the owner as 'Name <email> (team)'.", value)
	}
	rec.AddStep("owner_parsing_completed")
}

func (n *Normalizer) normalizeDeviceType(raw domain.RawRecord, rec *domain.NormalizedRecord, an *rowAnomalies) {
	value := raw.Get(domain.FieldDeviceType)
	dt, err := validator.ParseDeviceType(value)
	rec.DeviceType = dt

	switch {
	case validator.IsMissing(err):
		rec.AddStep("device_type_missing")
		an.add(domain.FieldDeviceType, domain.SeverityInfo, domain.KindFieldMissing,
			"device_type is empty", "Provide an explicit device_type or allow enrichment.", value)
	case err != nil:
		rec.AddStep("device_type_downgraded")
		an.add(domain.FieldDeviceType, domain.SeverityWarning, domain.KindFieldInvalid,
			fmt.Sprintf("device_type %q is not in the allowed set; set to unknown", validator.CollapseSpace(value)),
			deviceTypeRemediation(value), value)
	case dt.IsResolved():
		rec.DeviceTypeConfidence = 1.0
		rec.SetSource(domain.FieldDeviceType, domain.SourceRule)
		if validator.IsDeviceTypeAlias(validator.Clean(value)) {
			rec.AddStep("device_type_alias_mapped")
		}
		rec.AddStep("device_type_normalized")
	default:
		// Explicit "unknown" stays eligible for enrichment
		rec.AddStep("device_type_unknown")
	}
}

func deviceTypeRemediation(value string) string {
	allowed := strings.Join(domain.AllowedDeviceTypeNames(), ", ")
	if _, ok := validator.CanonicalTeam(value); ok {
		return fmt.Sprintf("%q is a team name; move it to the owner field and use one of: %s.", validator.CollapseSpace(value), allowed)
	}
	return "Use one of: " + allowed + "."
}

func (n *Normalizer) normalizeSite(raw domain.RawRecord, rec *domain.NormalizedRecord, an *rowAnomalies) {
	value := raw.Get(domain.FieldSite)
	site, err := validator.ParseSite(value)
	if err != nil {
		rec.AddStep("site_missing")
		an.add(domain.FieldSite, domain.SeverityInfo, domain.KindFieldMissing,
			"site is empty", "Record the site or location of the asset.", value)
		return
	}
	rec.Site = domain.StringPtr(site)
	rec.AddStep("site_normalized")
}

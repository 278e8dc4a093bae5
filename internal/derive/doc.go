// Package derive computes fields that follow from already validated values.
//
// # Reverse pointers
//
// ReversePTR builds the in-addr.arpa or ip6.arpa name for an address. It is
// only ever called with an address the IP validator accepted.
//
// # Subnet heuristic
//
// SubnetCIDR classifies an address against a fixed table of well-known
// reserved ranges. Private space gets its conventional prefix length; special
// ranges are flagged without a CIDR; public space is left empty. Nothing here
// consults routing tables, DNS or IPAM.
//
// # Owner extraction
//
// ExtractOwner runs a sequence of small rules over free-form owner text. Each
// rule pulls one kind of evidence (an email, a team token) and hands the
// leftover text to the next rule. Whatever survives becomes the owner name.
package derive

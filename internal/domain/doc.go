// Package domain provides the foundational types shared by every riskledger
// component: risk profiles, zones, lifecycle states, snapshot types, the
// error taxonomy, and canonical JSON hashing.
//
// This package imports nothing internal. Every other internal package may
// import domain; domain imports none of them.
//
// Key design constraints:
//   - All JSON tags use snake_case
//   - Hashes are SHA-256 over RFC 8785 canonical JSON
//   - Enumerations serialize as their upper-case wire names
package domain

// Package language normalizes the language codes found in catalog records and
// implements the English-or-missing candidate filter.
//
// Catalog entries carry ISO 639-1, ISO 639-2, regional tags such as en_GB,
// and occasionally full words. Normalize folds them to a single comparable
// form; DisplayName turns them into readable names for logs and reports.
package language

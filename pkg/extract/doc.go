// Package extract finds post URLs on a profile page and reads caption,
// media URL and engagement counters from each post page.
//
// Page readers are ordered lists of Step functions over a goquery document;
// the first step that produces a value wins.
package extract

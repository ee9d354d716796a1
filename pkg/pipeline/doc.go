// Package pipeline runs a complete analysis for one Instagram handle and
// saves the report.
//
// A brand analysis collects the brand's profile and posts, analyzes the
// brand, assembles its audience with the audience collector, samples the
// first public candidates and judges each against the brand's ideal
// customer profile, then summarizes the sample into audience insights.
//
// A user analysis checks the account exists, collects its profile and
// recent posts, and analyzes its influence.
//
// Any failure that stops an analysis is saved as an error record and
// returned as a *Failure.
package pipeline

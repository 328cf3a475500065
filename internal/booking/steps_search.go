// File: internal/booking/steps_search.go
package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/browser"
)

var (
	serviceCardMarkers = []string{".MuiCard-root", "#cardMainArea"}
	// Cards nest the label inside the clickable container; the click must land on
	// the structural ancestor, never on the matched text node.
	serviceCardAncestor = "button.MuiCardActionArea-root, .MuiCard-root, button"

	suggestionSelectors = []string{"[role='option']"}
)

// selectService locates the requested service label among the card headings and
// clicks the card's clickable ancestor.
func (s *stepper) selectService(ctx context.Context, service string) error {
	const stage = StageSelectService

	// Precondition: the card grid must render first.
	_, ok := s.pollUntil(ctx, s.cfg.ServiceCardTimeout, s.cfg.PollInterval,
		browser.FindJS(browser.Query{Selectors: serviceCardMarkers}),
		func(r browser.Result) bool { return r.Found })
	if !ok {
		return stageErr(stage, KindPreconditionTimeout, "service cards never rendered")
	}
	s.settle(ctx, s.cfg.ServiceSettle)

	outcome, err := s.clickChecked(ctx, stage, fmt.Sprintf("service card %q", service),
		browser.ClickJS(browser.Query{
			Selectors:     []string{".MuiTypography-root"},
			Text:          service,
			ClickAncestor: serviceCardAncestor,
		}))
	if err != nil {
		return err
	}
	s.log.Info("Service selected.", zap.String("label", outcome.MatchedLabel))
	s.settle(ctx, s.cfg.PostServiceSettle)
	return nil
}

// searchSpecialtyLocation fills the two autocomplete inputs and triggers the
// search. After typing, the first suggestion is accepted when one shows up;
// absence of suggestions is tolerated because the portal sometimes accepts
// typed-only values.
func (s *stepper) searchSpecialtyLocation(ctx context.Context, specialty, location string) error {
	const stage = StageSearch

	_, ok := s.pollUntil(ctx, s.cfg.StageTimeout, s.cfg.PollInterval,
		browser.FindJS(browser.Query{Selectors: []string{"input#filterService"}}),
		func(r browser.Result) bool { return r.Found })
	if !ok {
		return stageErr(stage, KindPreconditionTimeout, "search form never rendered")
	}
	s.settle(ctx, s.cfg.SearchFormSettle)

	if err := s.fillAutocomplete(ctx, "input#filterService", specialty); err != nil {
		return fmt.Errorf("%s: specialty: %w", stage, err)
	}
	if location != "" {
		if err := s.fillAutocomplete(ctx, "input#filterLocation", location); err != nil {
			return fmt.Errorf("%s: location: %w", stage, err)
		}
	}

	// Trigger the search only if the portal considers the form complete.
	probe, err := s.eval(ctx, browser.FindJS(browser.Query{Selectors: []string{"button"}, Text: "buscar"}))
	if err != nil {
		return fmt.Errorf("%s: probing search trigger: %w", stage, err)
	}
	if !probe.Found {
		return stageErr(stage, KindElementNotFound, "search trigger not found", probe.Candidates...)
	}
	if !probe.Enabled {
		return stageErr(stage, KindActionRejected, "search trigger is disabled; the form rejected an input")
	}
	if _, err := s.clickChecked(ctx, stage, "search trigger",
		browser.ClickJS(browser.Query{Selectors: []string{"button"}, Text: "buscar"})); err != nil {
		return err
	}
	s.log.Info("Search triggered.", zap.String("specialty", specialty), zap.String("location", location))
	return nil
}

func (s *stepper) fillAutocomplete(ctx context.Context, selector, value string) error {
	if err := s.page.SendKeys(ctx, selector, value); err != nil {
		return fmt.Errorf("typing into %s: %w", selector, err)
	}
	s.settle(ctx, s.cfg.SuggestionSettle)

	// Always accept the first suggestion; there is no fuzzy ranking.
	res, err := s.eval(ctx, browser.ClickJS(browser.Query{Selectors: suggestionSelectors}))
	if err != nil {
		return fmt.Errorf("accepting suggestion: %w", err)
	}
	if !res.Clicked {
		s.log.Debug("No suggestion list appeared; keeping typed value.",
			zap.String("selector", selector), zap.String("value", value))
	}
	s.settle(ctx, s.cfg.PostSearchSettle)
	return nil
}

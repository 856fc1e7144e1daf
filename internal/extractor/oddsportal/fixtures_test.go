package oddsportal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/odds-history-crawler/internal/crawler"
)

const testBase = "https://odds.test"

const matchPage = `<html><body>
<nav>
  <a data-testid="1" href="/football/">Football</a>
  <a data-testid="2" href="/football/england/">England</a>
  <a data-testid="3" href="/football/england/premier-league-2024-2025/">Premier League 2024/2025</a>
</nav>
<div class="header">
  <div data-testid="game-host"><a href="/football/team/arsenal/pOOXkKOk/">Arsenal</a></div>
  <div>2</div>
  <div>1</div>
  <div data-testid="game-guest"><a href="/football/team/chelsea/4fGZN2oK/">Chelsea</a></div>
</div>
<div data-testid="game-time-item"><p>Sunday,</p><p> 06 Oct 2024,</p><p> 16:30</p></div>
<div class="odds">
  <div class="row">
    <div class="name"><a href="/bookmaker/1xbet/"><p>1xBet</p></a></div>
    <div data-testid="odd-container">1.95</div>
    <div data-testid="odd-container">3.40</div>
    <div data-testid="odd-container">4.10</div>
  </div>
  <div class="row">
    <div class="name"><a href="/bookmaker/bet365/"><p>bet365.com</p></a></div>
    <div data-testid="odd-container">1.90</div>
    <div data-testid="odd-container">3.50</div>
    <div data-testid="odd-container">4.00</div>
  </div>
</div>
%s
</body></html>`

const homeMovement = `<div class="popup"><h3>Odds movement</h3>
<div><div>05 Oct, 14:20</div><div>1.90</div></div>
<div><div>31 Feb, 10:00</div><div>1.95</div></div>
<div>Opening odds:<div>28 Sep, 10:00</div><div>2.05</div></div>
</div>`

const drawMovement = `<div class="popup"><h3>Odds movement</h3>
<div><div>02 Oct, 09:00</div><div>3.50</div></div>
</div>`

const listingPage = `<html><body>
<div class="results">
  <a class="next-m:flex" href="/football/england/premier-league-2024-2025/arsenal-chelsea-AbC/"><div data-testid="game-row">Arsenal - Chelsea</div></a>
  <a class="next-m:flex" href="javascript:void(0)"><div data-testid="game-row">ad</div></a>
  <a class="next-m:flex" href="/football/england/premier-league-2024-2025/fulham-leeds-XyZ/"><div data-testid="game-row">Fulham - Leeds</div></a>
  <a class="next-m:flex" href="/football/england/premier-league-2024-2025/arsenal-chelsea-AbC/"><div data-testid="game-row">Arsenal - Chelsea</div></a>
  <a class="flex" href="/football/england/premier-league-2024-2025/hidden/"><div data-testid="game-row">desktop only</div></a>
</div>
<div class="pagination">%s</div>
</body></html>`

// htmlPage is a crawler.Page over in-memory documents. onClick returns the document shown
// after a click, or an error.
type htmlPage struct {
	mu      sync.Mutex
	html    string
	clicks  []string
	onClick func(selector string, index int) (string, error)
}

func (p *htmlPage) Load(context.Context, string, time.Duration) error    { return nil }
func (p *htmlPage) WaitFor(context.Context, string, time.Duration) error { return nil }
func (p *htmlPage) Close() error                                         { return nil }

func (p *htmlPage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *htmlPage) Click(_ context.Context, selector string, index int, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, fmt.Sprintf("%s#%d", selector, index))
	if p.onClick == nil {
		return nil
	}
	next, err := p.onClick(selector, index)
	if err != nil {
		return err
	}
	p.html = next
	return nil
}

func (p *htmlPage) clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// failingPage cannot produce a document.
type failingPage struct{ htmlPage }

func (*failingPage) HTML(context.Context) (string, error) { return "", errors.New("tab crashed") }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func matchWith(popup string) string { return fmt.Sprintf(matchPage, popup) }

func listingWith(pagination string) string { return fmt.Sprintf(listingPage, pagination) }

var _ crawler.Page = (*htmlPage)(nil)

/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"fmt"
	"math"
	"strings"
)

const defaultPageSize = 10

// MaxPageSize is the largest page size a PageRequest carries.
const MaxPageSize = 2000

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// Order is a single sort instruction on an entity property.
type Order struct {
	Property  string
	Direction Direction
}

func (o Order) String() string {
	return fmt.Sprintf("%s: %s", o.Property, o.Direction)
}

// Sort is an ordered list of Order instructions. The zero value is unsorted.
type Sort struct {
	orders []Order
}

// SortBy builds a Sort applying the same direction to every property.
func SortBy(direction Direction, properties ...string) Sort {
	orders := make([]Order, 0, len(properties))
	for _, p := range properties {
		orders = append(orders, Order{Property: p, Direction: direction})
	}
	return Sort{orders: orders}
}

// SortByOrders builds a Sort from explicit orders.
func SortByOrders(orders ...Order) Sort {
	return Sort{orders: append([]Order(nil), orders...)}
}

// Unsorted returns a Sort without any order.
func Unsorted() Sort { return Sort{} }

// And returns a new Sort with the orders of other appended.
func (s Sort) And(other Sort) Sort {
	orders := make([]Order, 0, len(s.orders)+len(other.orders))
	orders = append(orders, s.orders...)
	orders = append(orders, other.orders...)
	return Sort{orders: orders}
}

func (s Sort) Orders() []Order { return s.orders }

func (s Sort) IsSorted() bool { return len(s.orders) > 0 }

func (s Sort) String() string {
	if !s.IsSorted() {
		return "UNSORTED"
	}
	parts := make([]string, len(s.orders))
	for i, o := range s.orders {
		parts[i] = o.String()
	}
	return strings.Join(parts, ",")
}

// PageRequest describes a zero-based page index, a page size and a sort.
type PageRequest struct {
	page int
	size int
	sort Sort
}

// PageRequestOf builds a PageRequest. A negative page is treated as the first
// page, a size below one falls back to the default page size and sizes above
// MaxPageSize are capped. The page is capped so that the offset of the page and
// the row after it still fit in an int.
func PageRequestOf(page, size int, sort ...Sort) PageRequest {
	if size < 1 {
		size = defaultPageSize
	}
	size = min(size, MaxPageSize)
	page = min(max(page, 0), maxPage(size))
	var s Sort
	for _, each := range sort {
		s = s.And(each)
	}
	return PageRequest{page: page, size: size, sort: s}
}

func (p PageRequest) GetPage() int { return p.page }

func (p PageRequest) GetPageSize() int {
	if p.size < 1 {
		return defaultPageSize
	}
	return p.size
}

func (p PageRequest) GetOffset() int { return p.page * p.GetPageSize() }

func (p PageRequest) GetSort() Sort { return p.sort }

// Next returns the request for the following page; at the last addressable
// page it returns p unchanged.
func (p PageRequest) Next() PageRequest {
	return PageRequestOf(p.page+1, p.GetPageSize(), p.sort)
}

func maxPage(size int) int {
	return (math.MaxInt - size) / size
}

// Previous returns the previous page request, or the first one when already there.
func (p PageRequest) Previous() PageRequest {
	if p.page == 0 {
		return p
	}
	return PageRequest{page: p.page - 1, size: p.size, sort: p.sort}
}

func (p PageRequest) First() PageRequest {
	return PageRequest{page: 0, size: p.size, sort: p.sort}
}

func (p PageRequest) String() string {
	return fmt.Sprintf("Page request [number: %d, size %d, sort: %s]", p.page, p.GetPageSize(), p.sort)
}

// Slice is a bounded chunk of results that only knows whether a next chunk exists.
type Slice[T any] struct {
	Content []*T
	Number  int
	Size    int
	Sort    Sort
	hasNext bool
}

// NewSlice builds a Slice for the given request.
func NewSlice[T any](content []*T, pageable PageRequest, hasNext bool) *Slice[T] {
	if content == nil {
		content = make([]*T, 0)
	}
	return &Slice[T]{
		Content: content,
		Number:  pageable.GetPage(),
		Size:    pageable.GetPageSize(),
		Sort:    pageable.GetSort(),
		hasNext: hasNext,
	}
}

func (s *Slice[T]) NumberOfElements() int { return len(s.Content) }

func (s *Slice[T]) HasContent() bool { return len(s.Content) > 0 }

func (s *Slice[T]) HasNext() bool { return s.hasNext }

func (s *Slice[T]) HasPrevious() bool { return s.Number > 0 }

func (s *Slice[T]) IsFirst() bool { return !s.HasPrevious() }

func (s *Slice[T]) IsLast() bool { return !s.HasNext() }

// Page is a Slice that also carries the total number of matching elements.
type Page[T any] struct {
	Slice[T]
	TotalElements int64
}

// NewPage builds a Page from its content and the total element count.
func NewPage[T any](content []*T, pageable PageRequest, total int64) *Page[T] {
	p := &Page[T]{TotalElements: total}
	p.Slice = *NewSlice(content, pageable, false)
	p.hasNext = p.Number+1 < p.TotalPages()
	return p
}

// NewPageWithCounter builds a Page and only calls count when the total cannot be
// derived from the content: a first page shorter than the page size, or a
// non-empty last page, already determines the total.
func NewPageWithCounter[T any](content []*T, pageable PageRequest, count func() (int64, error)) (*Page[T], error) {
	size := pageable.GetPageSize()
	offset := int64(pageable.GetOffset())
	if offset == 0 && len(content) < size {
		return NewPage(content, pageable, int64(len(content))), nil
	}
	if len(content) != 0 && len(content) < size {
		return NewPage(content, pageable, offset+int64(len(content))), nil
	}
	total, err := count()
	if err != nil {
		return nil, err
	}
	return NewPage(content, pageable, total), nil
}

// TotalPages returns ceil(TotalElements / Size).
func (p *Page[T]) TotalPages() int {
	if p.Size == 0 {
		return 1
	}
	return int(math.Ceil(float64(p.TotalElements) / float64(p.Size)))
}

func (p *Page[T]) HasNext() bool { return p.Number+1 < p.TotalPages() }

func (p *Page[T]) IsLast() bool { return !p.HasNext() }

func (p *Page[T]) String() string {
	return fmt.Sprintf("Page %d of %d containing %d instances", p.Number+1, p.TotalPages(), len(p.Content))
}

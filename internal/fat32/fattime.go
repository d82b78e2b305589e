// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package fat32

import "time"

// decodeFATDateTime decodes a FAT date/time pair into a time.Time, per
// spec §4.7 "Date/time decode".
func decodeFATDateTime(date, t uint16) time.Time {
	year := 1980 + int((date>>9)&0x7F)
	month := int((date >> 5) & 0xF)
	day := int(date & 0x1F)
	hour := int((t >> 11) & 0x1F)
	minute := int((t >> 5) & 0x3F)
	second := int(t&0x1F) * 2

	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

// encodeFATDateTime is the inverse of decodeFATDateTime, used when writing
// creation/modification timestamps for new entries.
func encodeFATDateTime(tm time.Time) (date, t uint16) {
	tm = tm.UTC()
	y := tm.Year() - 1980
	if y < 0 {
		y = 0
	}
	date = uint16(y&0x7F)<<9 | uint16(tm.Month()&0xF)<<5 | uint16(tm.Day()&0x1F)
	t = uint16(tm.Hour()&0x1F)<<11 | uint16(tm.Minute()&0x3F)<<5 | uint16((tm.Second()/2)&0x1F)
	return date, t
}

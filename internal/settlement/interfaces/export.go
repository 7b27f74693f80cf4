package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"marketplace-settlement/internal/settlement/application"
)

var reportHeader = []string{"seller_id", "gross_sales", "commission", "net_payout", "count_items", "order_ids", "item_ids"}

// WriteReportCSV writes the monthly report as CSV.
func WriteReportCSV(w io.Writer, report application.Report) error {
	writer := csv.NewWriter(w)
	_ = writer.Write(reportHeader)
	for _, row := range report.Sellers {
		_ = writer.Write([]string{
			row.SellerID,
			row.GrossSales.StringFixed(2),
			row.Commission.StringFixed(2),
			row.NetPayout.StringFixed(2),
			strconv.Itoa(row.CountItems),
			strings.Join(row.OrderIDs, " "),
			strings.Join(row.ItemIDs, " "),
		})
	}
	writer.Flush()
	return writer.Error()
}

// BuildReportXLSX renders the monthly report as a workbook with a summary
// sheet and one row per seller.
func BuildReportXLSX(report application.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	sellersSheet := "sellers"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sellersSheet); err != nil {
		return nil, err
	}

	gross, commission, net := decimal.Zero, decimal.Zero, decimal.Zero
	items := 0
	for _, row := range report.Sellers {
		gross = gross.Add(row.GrossSales)
		commission = commission.Add(row.Commission)
		net = net.Add(row.NetPayout)
		items += row.CountItems
	}

	_ = f.SetCellValue(summarySheet, "A1", "Seller Settlement Report")
	_ = f.SetCellValue(summarySheet, "A3", "Month")
	_ = f.SetCellValue(summarySheet, "B3", report.Month)
	_ = f.SetCellValue(summarySheet, "A4", "Sellers")
	_ = f.SetCellValue(summarySheet, "B4", len(report.Sellers))
	_ = f.SetCellValue(summarySheet, "A5", "Items")
	_ = f.SetCellValue(summarySheet, "B5", items)
	_ = f.SetCellValue(summarySheet, "A6", "Gross Sales")
	_ = f.SetCellValue(summarySheet, "B6", gross.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A7", "Commission")
	_ = f.SetCellValue(summarySheet, "B7", commission.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A8", "Net Payout")
	_ = f.SetCellValue(summarySheet, "B8", net.InexactFloat64())

	for i, title := range []string{"Seller", "Gross Sales", "Commission", "Net Payout", "Items", "Orders"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sellersSheet, cell, title)
	}
	for i, row := range report.Sellers {
		r := i + 2
		_ = f.SetCellValue(sellersSheet, fmt.Sprintf("A%d", r), row.SellerID)
		_ = f.SetCellValue(sellersSheet, fmt.Sprintf("B%d", r), row.GrossSales.InexactFloat64())
		_ = f.SetCellValue(sellersSheet, fmt.Sprintf("C%d", r), row.Commission.InexactFloat64())
		_ = f.SetCellValue(sellersSheet, fmt.Sprintf("D%d", r), row.NetPayout.InexactFloat64())
		_ = f.SetCellValue(sellersSheet, fmt.Sprintf("E%d", r), row.CountItems)
		_ = f.SetCellValue(sellersSheet, fmt.Sprintf("F%d", r), len(row.OrderIDs))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBatchStatementPDF renders a payout statement for one batch.
func BuildBatchStatementPDF(detail application.BatchDetail) ([]byte, error) {
	b := detail.Batch
	if b == nil {
		return nil, fmt.Errorf("statement: nil batch")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Seller Payout Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Seller: %s", b.SellerID),
		fmt.Sprintf("Month: %s", b.Month),
		fmt.Sprintf("Batch: %s", b.ID),
		fmt.Sprintf("Status: %s", b.Status),
		fmt.Sprintf("Attempts: %d", b.Attempts),
	}
	if b.ProviderPayoutID != "" {
		lines = append(lines, fmt.Sprintf("Provider payout: %s", b.ProviderPayoutID))
	}
	if b.SettledAt != nil {
		lines = append(lines, fmt.Sprintf("Settled: %s", b.SettledAt.Format(time.RFC3339)))
	}
	if b.FailureReason != "" {
		lines = append(lines, fmt.Sprintf("Failure: %s", b.FailureReason))
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Gross Sales: %s", b.GrossSales.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Commission: %s", b.Commission.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Net Payout: %s", b.NetPayout.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Items: %d  Orders: %d", len(b.OrderItemIDs), len(b.OrderIDs)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Provider / Error", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, tx := range detail.Transactions {
		ref := tx.ProviderPayoutID
		if tx.ErrorMessage != "" {
			ref = tx.ErrorMessage
		}
		if len(ref) > 45 {
			ref = ref[:45]
		}
		pdf.CellFormat(45, 6, tx.CreatedAt.Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, tx.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, tx.NetPayout.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(70, 6, ref, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
